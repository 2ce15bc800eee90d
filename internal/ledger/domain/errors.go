package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound            = errors.New("transaction_not_found")
	ErrInvalidID           = errors.New("invalid_transaction_id")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrIllegalTransition   = errors.New("illegal_transition")
	ErrExternalRefConflict = errors.New("external_ref_conflict")
	ErrLinkNotSettled      = errors.New("payment_link_not_settled")
)

// IllegalTransitionError carries the state that made a transition illegal.
type IllegalTransitionError struct {
	TransactionID snowflake.ID
	Current       Status
	From          []Status
	To            Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal_transition: transaction %s is %s, wanted %v -> %s", e.TransactionID, e.Current, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
