package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/providers/pdf"
)

const receiptDateLayout = "02/01/2006 15:04 MST"

var (
	errInstrumentMissing  = apperr.New(apperr.KindNotFound, ErrInstrumentMissing, "payment has no instrument yet")
	errReceiptUnavailable = apperr.Conflict(ErrReceiptUnavailable, "receipt is only available for approved payments")
)

func (s *Server) GetPaymentQRCode(c *gin.Context) {
	size, err := parseOptionalInt(c.Query("size"))
	if err != nil {
		AbortWithError(c, newValidationError("size", "invalid_size", "invalid size"))
		return
	}

	payment, err := s.paymentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	code, ok := payment.InstrumentCode()
	if !ok {
		AbortWithError(c, errInstrumentMissing)
		return
	}

	var px int
	if size != nil {
		px = *size
	}
	body, err := s.qr.PNG(code, px)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", body)
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	details, err := s.paymentSvc.GetDisplay(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payment := details.Payment
	if payment.Status() != paymentdomain.StatusApproved {
		AbortWithError(c, errReceiptUnavailable)
		return
	}

	r, err := s.receipts.GenerateReceipt(ctx, s.receiptData(details))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, payment.ID().String()))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) receiptData(details paymentdomain.PaymentDetails) pdf.ReceiptData {
	payment := details.Payment
	data := pdf.ReceiptData{
		MerchantName: s.cfg.Receipts.MerchantName,
		PaymentID:    payment.ID().String(),
		OrderID:      payment.OrderID().String(),
		CustomerName: details.CustomerName,
		Description:  payment.Description(),
		Amount:       formatBRL(payment.Amount()),
	}
	if paidAt, ok := payment.PaidAt(); ok {
		data.DatePaid = paidAt.UTC().Format(receiptDateLayout)
	}
	if ext, ok := payment.ExternalID(); ok {
		data.ExternalID = ext
	}
	if code, ok := payment.InstrumentCode(); ok {
		data.InstrumentCode = code
	}
	return data
}

// formatBRL renders 1234.5 as "R$ 1.234,50".
func formatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	units, cents, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return sign + "R$ " + grouped.String() + "," + cents
}
