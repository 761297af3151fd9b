// Package simulated is a local gateway that issues PIX BR Code payloads
// without talking to a provider. Every payment stays pending until a
// webhook or an operator confirms it.
package simulated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/payment/gateway"
)

const (
	ProviderName    = "simulated"
	SignatureHeader = "X-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewProvider(_ config.GatewayConfig, settings *config.GatewayConfigHolder) (domain.Provider, error) {
	if settings == nil {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{settings: settings, now: time.Now}, nil
}

type Adapter struct {
	settings *config.GatewayConfigHolder
	now      func() time.Time
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) GenerateInstrument(ctx context.Context, amount decimal.Decimal, _ string, _ uuid.UUID) (domain.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return domain.Instrument{}, err
	}

	settings := a.settings.Get()
	externalID := NewExternalID()
	return domain.Instrument{
		Code:           BRCode(externalID, amount, settings.MerchantName, settings.MerchantCity),
		ExternalID:     externalID,
		ProviderStatus: domain.ProviderStatusPending,
	}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProviderStatus{}, err
	}
	return domain.ProviderStatus{
		ExternalID: externalID,
		Status:     domain.ProviderStatusPending,
	}, nil
}

// Verify checks the hex HMAC of the raw body. Verification is skipped when
// no webhook secret is configured.
func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	secret := strings.TrimSpace(a.settings.Get().WebhookSecret)
	if secret == "" {
		return nil
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" || !gateway.VerifySignature(secret, payload, signature) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type notification struct {
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
	Data        struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (a *Adapter) ParseNotification(payload []byte) (domain.Notification, error) {
	var body notification
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.Notification{}, domain.ErrInvalidPayload
	}
	externalID := strings.TrimSpace(body.Data.ID)
	if externalID == "" {
		return domain.Notification{}, domain.ErrInvalidPayload
	}

	occurredAt := body.DateCreated
	if occurredAt.IsZero() {
		occurredAt = a.now()
	}
	eventType := strings.TrimSpace(body.Action)
	if eventType == "" {
		eventType = "payment.updated"
	}
	return domain.Notification{
		ExternalID: externalID,
		EventType:  eventType,
		Status:     strings.ToLower(strings.TrimSpace(body.Status)),
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// NewExternalID returns "MP-" followed by 16 upper-case hex characters.
func NewExternalID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MP-" + strings.ToUpper(raw[:16])
}

// BRCode renders the static PIX payload for a payment.
func BRCode(externalID string, amount decimal.Decimal, merchantName, merchantCity string) string {
	return fmt.Sprintf(
		"00020126580014br.gov.bcb.pix0136%s520400005303986540%s5802BR59%02d%s60%02d%s62070503***6304",
		externalID,
		amount.StringFixed(2),
		len(merchantName), merchantName,
		len(merchantCity), merchantCity,
	)
}
