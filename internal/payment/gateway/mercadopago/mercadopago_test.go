package mercadopago

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, baseURL string, settings config.GatewaySettings) domain.Provider {
	t.Helper()
	provider, err := NewFactory(nil).NewProvider(config.GatewayConfig{
		Provider:    ProviderName,
		BaseURL:     baseURL,
		AccessToken: "TEST-token",
		PayerEmail:  "payer@example.com",
	}, config.NewStaticGatewayConfigHolder(settings))
	require.NoError(t, err)
	return provider
}

func TestFactoryRequiresCredentials(t *testing.T) {
	holder := config.NewStaticGatewayConfigHolder(config.DefaultGatewaySettings())

	_, err := NewFactory(nil).NewProvider(config.GatewayConfig{PayerEmail: "a@b.c"}, holder)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewFactory(nil).NewProvider(config.GatewayConfig{AccessToken: "x"}, holder)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestGenerateInstrument(t *testing.T) {
	orderID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, 45.9, body["transaction_amount"])
		assert.Equal(t, "pix", body["payment_method_id"])
		assert.Equal(t, orderID.String(), body["external_reference"])
		assert.Equal(t, "https://hooks.example.com/mp", body["notification_url"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":123456789,"status":"pending","point_of_interaction":{"transaction_data":{"qr_code":"00020126-pix"}}}`))
	}))
	defer server.Close()

	settings := config.DefaultGatewaySettings()
	settings.NotificationURL = "https://hooks.example.com/mp"
	provider := newProvider(t, server.URL, settings)

	instrument, err := provider.GenerateInstrument(context.Background(), decimal.RequireFromString("45.90"), "Pagamento Pedido #1", orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.Instrument{Code: "00020126-pix", ExternalID: "123456789", ProviderStatus: "pending"}, instrument)
}

func TestGenerateInstrumentDecodesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid transaction_amount","error":"bad_request","status":400,"cause":[{"code":4020,"description":"amount too small"}]}`))
	}))
	defer server.Close()

	provider := newProvider(t, server.URL, config.DefaultGatewaySettings())
	_, err := provider.GenerateInstrument(context.Background(), decimal.NewFromInt(1), "", uuid.New())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid transaction_amount: amount too small", apiErr.Message)
}

func TestGenerateInstrumentTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	settings := config.DefaultGatewaySettings()
	settings.RequestTimeout = 50 * time.Millisecond
	provider := newProvider(t, server.URL, settings)

	ctx := context.Background()
	_, err := provider.GenerateInstrument(ctx, decimal.NewFromInt(1), "", uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(apperr.Upstream(ctx, err)))
}

func TestQueryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/987", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":987,"status":"approved","date_approved":"2024-05-10T12:30:00.000-03:00"}`))
	}))
	defer server.Close()

	status, err := newProvider(t, server.URL, config.DefaultGatewaySettings()).QueryStatus(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, "987", status.ExternalID)
	assert.Equal(t, "approved", status.Status)
	require.NotNil(t, status.PaidAt)
	assert.Equal(t, 15, status.PaidAt.UTC().Hour())
}

func TestVerifySignature(t *testing.T) {
	settings := config.DefaultGatewaySettings()
	settings.WebhookSecret = "mp-secret"
	provider := newProvider(t, "", settings)

	payload := []byte(`{"action":"payment.updated","type":"payment","data":{"id":"987"}}`)
	sig := gateway.Sign("mp-secret", []byte("id:987;request-id:req-1;ts:1704908010;"))

	headers := http.Header{}
	headers.Set(RequestIDHeader, "req-1")
	headers.Set(SignatureHeader, "ts=1704908010,v1="+sig)
	assert.NoError(t, provider.Verify(payload, headers))

	headers.Set(SignatureHeader, "ts=1704908011,v1="+sig)
	assert.ErrorIs(t, provider.Verify(payload, headers), domain.ErrInvalidSignature)

	headers.Del(SignatureHeader)
	assert.ErrorIs(t, provider.Verify(payload, headers), domain.ErrInvalidSignature)
}

func TestVerifyWithoutSecretFails(t *testing.T) {
	provider := newProvider(t, "", config.DefaultGatewaySettings())
	assert.ErrorIs(t, provider.Verify([]byte(`{}`), http.Header{}), domain.ErrInvalidConfig)
}

func TestParseNotification(t *testing.T) {
	provider := newProvider(t, "", config.DefaultGatewaySettings())

	n, err := provider.ParseNotification([]byte(`{"action":"payment.updated","type":"payment","data":{"id":"987"}}`))
	require.NoError(t, err)
	assert.Equal(t, "987", n.ExternalID)
	assert.Equal(t, "payment.updated", n.EventType)
	assert.Empty(t, n.Status)

	_, err = provider.ParseNotification([]byte(`{"type":"merchant_order","data":{"id":"1"}}`))
	assert.ErrorIs(t, err, domain.ErrEventIgnored)
}
