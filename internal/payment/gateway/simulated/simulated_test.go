package simulated

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T, secret string) domain.Provider {
	t.Helper()
	settings := config.DefaultGatewaySettings()
	settings.WebhookSecret = secret
	provider, err := NewFactory().NewProvider(config.GatewayConfig{}, config.NewStaticGatewayConfigHolder(settings))
	require.NoError(t, err)
	return provider
}

func TestGenerateInstrument(t *testing.T) {
	provider := newAdapter(t, "")

	instrument, err := provider.GenerateInstrument(context.Background(), decimal.RequireFromString("45.9"), "Pagamento Pedido #x", uuid.New())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^MP-[0-9A-F]{16}$`), instrument.ExternalID)
	assert.Equal(t, "pending", instrument.ProviderStatus)
	assert.Equal(t,
		"00020126580014br.gov.bcb.pix0136"+instrument.ExternalID+
			"520400005303986540"+"45.90"+"5802BR5925Tech Challenge Restaurant6009SAO PAULO62070503***6304",
		instrument.Code,
	)
}

func TestGenerateInstrumentHonoursCancellation(t *testing.T) {
	provider := newAdapter(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GenerateInstrument(ctx, decimal.NewFromInt(1), "", uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryStatusIsAlwaysPending(t *testing.T) {
	status, err := newAdapter(t, "").QueryStatus(context.Background(), "MP-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStatus{ExternalID: "MP-1", Status: "pending"}, status)
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"action":"payment.updated","status":"approved","data":{"id":"MP-1"}}`)

	assert.NoError(t, newAdapter(t, "").Verify(payload, http.Header{}))

	provider := newAdapter(t, "s3cret")
	headers := http.Header{}
	assert.ErrorIs(t, provider.Verify(payload, headers), domain.ErrInvalidSignature)

	headers.Set(SignatureHeader, gateway.Sign("s3cret", payload))
	assert.NoError(t, provider.Verify(payload, headers))

	headers.Set(SignatureHeader, gateway.Sign("other", payload))
	assert.ErrorIs(t, provider.Verify(payload, headers), domain.ErrInvalidSignature)
}

func TestParseNotification(t *testing.T) {
	provider := newAdapter(t, "")

	n, err := provider.ParseNotification([]byte(`{"action":"payment.updated","status":"APPROVED","date_created":"2024-05-10T12:00:00Z","data":{"id":"MP-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "MP-1", n.ExternalID)
	assert.Equal(t, "approved", n.Status)
	assert.Equal(t, "payment.updated", n.EventType)
	assert.Equal(t, 2024, n.OccurredAt.Year())

	_, err = provider.ParseNotification([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = provider.ParseNotification([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
