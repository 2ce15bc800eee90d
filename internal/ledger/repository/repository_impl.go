package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const transactionColumns = `id, external_ref, amount, currency, status, payment_method,
	card_last4, card_brand, customer_email, customer_phone, description,
	refund_ref, refunded_amount, last_event_id, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.ExternalRef,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.PaymentMethod,
		tx.CardLast4,
		tx.CardBrand,
		tx.CustomerEmail,
		tx.CustomerPhone,
		tx.Description,
		tx.RefundRef,
		tx.RefundedAmount,
		tx.LastEventID,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

// InsertIfAbsent inserts tx unless its id or external reference already exists.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, tx *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE external_ref = ?
		 LIMIT 1`,
		ref,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Transaction, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Transaction
	err := stmt.
		Order("created_at desc, id desc").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CompareAndSetStatus moves the row to update.Next only while it still holds
// update.Expected. The boolean reports whether the row changed.
func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (bool, error) {
	values := map[string]any{
		"status":        update.Next,
		"last_event_id": update.CausingEventID,
		"updated_at":    update.UpdatedAt,
	}
	if update.CardLast4 != "" {
		values["card_last4"] = update.CardLast4
	}
	if update.CardBrand != "" {
		values["card_brand"] = update.CardBrand
	}
	if update.RefundRef != "" {
		values["refund_ref"] = update.RefundRef
	}
	if update.RefundedAmount > 0 {
		values["refunded_amount"] = update.RefundedAmount
	}

	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", update.TransactionID, update.Expected).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AttachExternalRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET external_ref = ?, updated_at = ?
		 WHERE id = ? AND (external_ref IS NULL OR external_ref = ?)`,
		ref,
		at,
		id,
		ref,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AttachCardDetails(ctx context.Context, db *gorm.DB, id snowflake.ID, last4, brand string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET card_last4 = ?, card_brand = ?, updated_at = ?
		 WHERE id = ? AND card_last4 = ''`,
		last4,
		brand,
		at,
		id,
	).Error
}

// RaiseRefund only ever grows refunded_amount, so out-of-order refund events
// cannot shrink it.
func (r *repo) RaiseRefund(ctx context.Context, db *gorm.DB, update domain.RefundUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET refund_ref = ?, refunded_amount = ?, last_event_id = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refunded_amount < ?`,
		update.RefundRef,
		update.RefundedAmount,
		update.CausingEventID,
		update.UpdatedAt,
		update.TransactionID,
		domain.StatusRefunded,
		update.RefundedAmount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertTransition(ctx context.Context, db *gorm.DB, transition *domain.Transition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transaction_transitions (id, transaction_id, from_status, to_status, causing_event_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		transition.ID,
		transition.TransactionID,
		transition.FromStatus,
		transition.ToStatus,
		transition.CausingEventID,
		transition.CreatedAt,
	).Error
}

func (r *repo) FindTransitionByEvent(ctx context.Context, db *gorm.DB, txID snowflake.ID, eventID string, to domain.Status) (*domain.Transition, error) {
	var item domain.Transition
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, from_status, to_status, causing_event_id, created_at
		 FROM transaction_transitions
		 WHERE transaction_id = ? AND causing_event_id = ? AND to_status = ?
		 LIMIT 1`,
		txID,
		eventID,
		to,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, txID snowflake.ID) ([]domain.Transition, error) {
	var items []domain.Transition
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, from_status, to_status, causing_event_id, created_at
		 FROM transaction_transitions
		 WHERE transaction_id = ?
		 ORDER BY created_at ASC, id ASC`,
		txID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SettleLink marks an unpaid link as paid by txID in a single conditional update.
func (r *repo) SettleLink(ctx context.Context, db *gorm.DB, linkID, txID snowflake.ID, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_links
		 SET paid = ?, paid_at = ?, transaction_id = ?, updated_at = ?
		 WHERE id = ? AND paid = ?`,
		true,
		paidAt,
		txID,
		paidAt,
		linkID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindLinkSettlement(ctx context.Context, db *gorm.DB, linkID snowflake.ID) (*domain.LinkSettlement, error) {
	var item domain.LinkSettlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, paid, paid_at, transaction_id
		 FROM payment_links WHERE id = ?`,
		linkID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
