package notification

import (
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/paydesk/internal/money"
)

const (
	KindPaymentLink = "payment_link_sms"
	KindReceipt     = "receipt_sms"
	KindRefund      = "refund_sms"
)

func PaymentLinkMessage(amount money.Money, url string, expiresIn time.Duration) string {
	hours := int(math.Ceil(expiresIn.Hours()))
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("Payment Request: %s\nPay securely here: %s\nLink expires in %d hours.", amount.Display(), url, hours)
}

func ReceiptMessage(receiptNumber string, amount money.Money, businessName string) string {
	return fmt.Sprintf("Receipt: %s\nAmount: %s\nThank you for your payment!\n- %s", receiptNumber, amount.Display(), businessName)
}

func RefundMessage(amount money.Money, refundRef, businessName string) string {
	return fmt.Sprintf("Refund of %s has been issued (ref %s).\nIt may take a few days to appear on your statement.\n- %s", amount.Display(), refundRef, businessName)
}
