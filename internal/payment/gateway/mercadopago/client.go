package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mercadopago.com"

type paymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	ExternalReference string      `json:"external_reference"`
	NotificationURL   string      `json:"notification_url,omitempty"`
	Payer             payer       `json:"payer"`
}

type payer struct {
	Email string `json:"email"`
}

type paymentResponse struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	DateApproved       *time.Time         `json:"date_approved"`
	PointOfInteraction pointOfInteraction `json:"point_of_interaction"`
}

type pointOfInteraction struct {
	TransactionData struct {
		QRCode       string `json:"qr_code"`
		QRCodeBase64 string `json:"qr_code_base64"`
	} `json:"transaction_data"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Cause   []struct {
		Code        any    `json:"code"`
		Description string `json:"description"`
	} `json:"cause"`
}

// APIError is a non-2xx answer from the Mercado Pago API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Message)
}

type client struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

func newClient(baseURL, accessToken string, httpClient *http.Client) *client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &client{
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(accessToken),
		http:        httpClient,
	}
}

func (c *client) createPayment(ctx context.Context, body paymentRequest, idempotencyKey string) (paymentResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return paymentResponse{}, err
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/payments", payload, idempotencyKey)
}

func (c *client) getPayment(ctx context.Context, id string) (paymentResponse, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, "")
}

func (c *client) doRequest(ctx context.Context, method, path string, payload []byte, idempotencyKey string) (paymentResponse, error) {
	if c.accessToken == "" {
		return paymentResponse{}, errors.New("mercadopago: access token is not configured")
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return paymentResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return paymentResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return paymentResponse{}, decodeError(resp)
	}

	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return paymentResponse{}, fmt.Errorf("mercadopago: decode response: %w", err)
	}
	if out.ID == 0 {
		return paymentResponse{}, errors.New("mercadopago: response without payment id")
	}
	return out, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return apiErr
	}
	switch {
	case strings.TrimSpace(body.Message) != "":
		apiErr.Message = strings.TrimSpace(body.Message)
	case strings.TrimSpace(body.Error) != "":
		apiErr.Message = strings.TrimSpace(body.Error)
	}
	if len(body.Cause) > 0 && strings.TrimSpace(body.Cause[0].Description) != "" {
		apiErr.Message += ": " + strings.TrimSpace(body.Cause[0].Description)
	}
	return apiErr
}
