package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingReceiptNumber = errors.New("missing_receipt_number")

// ReceiptData is a fully formatted receipt; amounts are display strings.
type ReceiptData struct {
	BusinessName    string
	BusinessAddress string
	BusinessPhone   string

	ReceiptNumber string
	IssuedAt      string
	Description   string
	Amount        string
	PaidWith      string
	Refunded      string
	Footer        string
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) RenderReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if receipt.ReceiptNumber == "" {
		return nil, ErrMissingReceiptNumber
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(12, receipt.BusinessName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(12,
		col.New(12).Add(
			text.New(receipt.BusinessAddress, props.Text{Size: 9, Align: align.Center}),
			text.New(receipt.BusinessPhone, props.Text{Size: 9, Align: align.Center, Top: 5}),
		),
	)

	m.AddRow(14,
		col.New(12).Add(
			text.New("Receipt: "+receipt.ReceiptNumber, props.Text{Size: 10}),
			text.New("Date: "+receipt.IssuedAt, props.Text{Size: 10, Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, receipt.Description, props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, "TOTAL", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, receipt.Amount, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	if receipt.Refunded != "" {
		m.AddRow(10,
			text.NewCol(8, "Refunded", props.Text{Size: 9}),
			text.NewCol(4, receipt.Refunded, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, receipt.PaidWith, props.Text{Size: 9, Top: 4}),
	)
	m.AddRow(12,
		text.NewCol(12, receipt.Footer, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   4,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
