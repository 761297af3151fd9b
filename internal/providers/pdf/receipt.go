package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrInvalidReceipt = errors.New("invalid receipt data")

// ReceiptData is already formatted for display.
type ReceiptData struct {
	MerchantName string
	PaymentID    string
	OrderID      string
	CustomerName string
	Description  string
	Amount       string
	DatePaid     string
	ExternalID   string
	// InstrumentCode is printed as a QR code when present.
	InstrumentCode string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(receipt.PaymentID) == "" || strings.TrimSpace(receipt.Amount) == "" {
		return nil, ErrInvalidReceipt
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Comprovante de pagamento", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.MerchantName, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Pagamento: "+receipt.PaymentID, props.Text{Top: 0}),
			text.New("Pedido: "+receipt.OrderID, props.Text{Top: 5}),
			text.New("Pago em: "+receipt.DatePaid, props.Text{Top: 10}),
			text.New("Transação: "+fallback(receipt.ExternalID, "-"), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Cliente", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(fallback(receipt.CustomerName, "-"), props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" pago em "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(9, "Descrição", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Valor", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))
	m.AddRow(10,
		text.NewCol(9, receipt.Description, props.Text{Size: 9}),
		text.NewCol(3, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, receipt.Amount, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if strings.TrimSpace(receipt.InstrumentCode) != "" {
		m.AddRow(45,
			code.NewQrCol(4, receipt.InstrumentCode, props.Rect{
				Center:  true,
				Percent: 90,
			}),
			col.New(8),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
