package tracing

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/qrpay/internal/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"tax_id": {},
	"email":  {},
	"name":   {},
}

// ExtractContext pulls remote span context out of carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes that may carry personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, banned := forbiddenAttributeKeys[attr.Key]; banned {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces err to its kind and code so raw messages with
// customer data never reach the exporter.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	kind := apperr.KindOf(err)
	if appErr, ok := apperr.As(err); ok {
		return errors.New(string(kind) + ": " + strings.TrimSpace(appErr.Code()))
	}
	return errors.New(string(kind))
}
