// Package mercadopago issues PIX payments through the Mercado Pago
// payments API and authenticates its webhooks.
package mercadopago

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/payment/gateway"
)

const (
	ProviderName    = "mercadopago"
	SignatureHeader = "X-Signature"
	RequestIDHeader = "X-Request-Id"
)

type Factory struct {
	httpClient *http.Client
}

// NewFactory returns a factory using client for API calls; nil means a
// default client.
func NewFactory(client *http.Client) *Factory {
	return &Factory{httpClient: client}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewProvider(cfg config.GatewayConfig, settings *config.GatewayConfigHolder) (domain.Provider, error) {
	if settings == nil || strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, domain.ErrInvalidConfig
	}
	payerEmail := strings.TrimSpace(cfg.PayerEmail)
	if payerEmail == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{
		client:     newClient(cfg.BaseURL, cfg.AccessToken, f.httpClient),
		settings:   settings,
		payerEmail: payerEmail,
	}, nil
}

type Adapter struct {
	client     *client
	settings   *config.GatewayConfigHolder
	payerEmail string
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) GenerateInstrument(ctx context.Context, amount decimal.Decimal, description string, orderID uuid.UUID) (domain.Instrument, error) {
	settings := a.settings.Get()
	ctx, cancel := context.WithTimeout(ctx, settings.RequestTimeout)
	defer cancel()

	resp, err := a.client.createPayment(ctx, paymentRequest{
		TransactionAmount: json.Number(amount.StringFixed(2)),
		Description:       description,
		PaymentMethodID:   "pix",
		ExternalReference: orderID.String(),
		NotificationURL:   strings.TrimSpace(settings.NotificationURL),
		Payer:             payer{Email: a.payerEmail},
	}, ulid.Make().String())
	if err != nil {
		return domain.Instrument{}, err
	}

	return domain.Instrument{
		Code:           resp.PointOfInteraction.TransactionData.QRCode,
		ExternalID:     strconv.FormatInt(resp.ID, 10),
		ProviderStatus: resp.Status,
	}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, a.settings.Get().RequestTimeout)
	defer cancel()

	resp, err := a.client.getPayment(ctx, strings.TrimSpace(externalID))
	if err != nil {
		return domain.ProviderStatus{}, err
	}
	return domain.ProviderStatus{
		ExternalID: strconv.FormatInt(resp.ID, 10),
		Status:     resp.Status,
		PaidAt:     resp.DateApproved,
	}, nil
}

type notification struct {
	Action      string    `json:"action"`
	Type        string    `json:"type"`
	DateCreated time.Time `json:"date_created"`
	Data        struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Verify checks the x-signature header ("ts=...,v1=...") against the
// manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	secret := strings.TrimSpace(a.settings.Get().WebhookSecret)
	if secret == "" {
		return domain.ErrInvalidConfig
	}

	ts, v1, ok := parseSignature(headers.Get(SignatureHeader))
	if !ok {
		return domain.ErrInvalidSignature
	}

	var body notification
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.ErrInvalidPayload
	}

	manifest := manifest(body.Data.ID, headers.Get(RequestIDHeader), ts)
	if !gateway.VerifySignature(secret, []byte(manifest), v1) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseNotification(payload []byte) (domain.Notification, error) {
	var body notification
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.Notification{}, domain.ErrInvalidPayload
	}
	if typ := strings.TrimSpace(body.Type); typ != "" && typ != "payment" {
		return domain.Notification{}, domain.ErrEventIgnored
	}
	externalID := strings.TrimSpace(body.Data.ID)
	if externalID == "" {
		return domain.Notification{}, domain.ErrInvalidPayload
	}

	occurredAt := body.DateCreated
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	eventType := strings.TrimSpace(body.Action)
	if eventType == "" {
		eventType = "payment.updated"
	}
	// Mercado Pago notifications never carry the status; callers query it.
	return domain.Notification{
		ExternalID: externalID,
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

func parseSignature(header string) (ts, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1, ts != "" && v1 != ""
}

func manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID = strings.ToLower(strings.TrimSpace(dataID)); dataID != "" {
		b.WriteString("id:" + dataID + ";")
	}
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
