package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/apperr"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unparsedEventType = "unparsed"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Provider   paymentdomain.Provider
	Payments   paymentdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	provider   paymentdomain.Provider
	payments   paymentdomain.Service
	obsMetrics *obsmetrics.Metrics
	now        func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		provider:   p.Provider,
		payments:   p.Payments,
		obsMetrics: p.ObsMetrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest logs the raw notification before anything else so that failed
// deliveries stay visible to ListUnprocessed.
func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != s.provider.Provider() {
		return domain.IngestResult{}, apperr.NotFound(domain.ErrUnknownProvider)
	}

	notification, parseErr := s.provider.ParseNotification(req.Payload)
	eventType := notification.EventType
	if parseErr != nil || eventType == "" {
		eventType = unparsedEventType
	}

	event, err := domain.NewWebhookEvent(s.genID.Generate(), provider, eventType, string(req.Payload), s.now())
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "invalid")
		return domain.IngestResult{}, err
	}
	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return domain.IngestResult{}, apperr.Storage(ctx, err)
	}
	result := domain.IngestResult{EventID: event.ID().String()}

	if err := s.provider.Verify(req.Payload, req.Headers); err != nil {
		return result, s.fail(ctx, event, apperr.Validation(domain.ErrInvalidSignature))
	}

	if parseErr != nil {
		if errors.Is(parseErr, paymentdomain.ErrEventIgnored) {
			result.Outcome = domain.OutcomeIgnored
			return result, s.succeed(ctx, event, nil, result.Outcome)
		}
		return result, s.fail(ctx, event, apperr.Validation(domain.ErrInvalidPayload))
	}

	status := notification.Status
	paidAt := notification.OccurredAt
	if status == "" {
		providerStatus, err := s.provider.QueryStatus(ctx, notification.ExternalID)
		if err != nil {
			s.obsMetrics.RecordGatewayRequest(ctx, provider, "query_status", "error")
			return result, s.fail(ctx, event, apperr.Upstream(ctx, err))
		}
		s.obsMetrics.RecordGatewayRequest(ctx, provider, "query_status", "success")
		status = strings.ToLower(providerStatus.Status)
		if providerStatus.PaidAt != nil {
			paidAt = *providerStatus.PaidAt
		}
	}

	var payment paymentdomain.Payment
	switch status {
	case paymentdomain.ProviderStatusApproved:
		payment, err = s.payments.Confirm(ctx, paymentdomain.ConfirmPaymentRequest{
			ExternalID:  notification.ExternalID,
			ConfirmedAt: paidAt,
		})
		if errors.Is(err, paymentdomain.ErrAlreadyConfirmed) {
			// redelivery of an approval we already applied
			result.Outcome = domain.OutcomeIgnored
			return result, s.succeed(ctx, event, nil, result.Outcome)
		}
		if err != nil {
			return result, s.fail(ctx, event, err)
		}
		result.Outcome = domain.OutcomeConfirmed

	case paymentdomain.ProviderStatusRejected:
		payment, err = s.payments.Reject(ctx, notification.ExternalID)
		if err != nil {
			return result, s.fail(ctx, event, err)
		}
		result.Outcome = domain.OutcomeRejected

	case paymentdomain.ProviderStatusCancelled:
		payment, err = s.payments.CancelByExternalID(ctx, notification.ExternalID)
		if err != nil {
			return result, s.fail(ctx, event, err)
		}
		result.Outcome = domain.OutcomeCancelled

	default:
		result.Outcome = domain.OutcomeIgnored
		return result, s.succeed(ctx, event, nil, result.Outcome)
	}

	paymentID := payment.ID()
	result.PaymentID = paymentID.String()
	return result, s.succeed(ctx, event, &paymentID, result.Outcome)
}

func (s *Service) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = domain.DefaultUnprocessedLimit
	}
	if limit > domain.MaxUnprocessedLimit {
		limit = domain.MaxUnprocessedLimit
	}

	items, err := s.repo.ListUnprocessed(ctx, s.db, limit)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}
	events := make([]domain.WebhookEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}
	return events, nil
}

func (s *Service) succeed(ctx context.Context, event *domain.WebhookEvent, paymentID *snowflake.ID, outcome domain.Outcome) error {
	event.MarkProcessed(paymentID, s.now())
	if err := s.repo.Update(ctx, s.db, event); err != nil {
		return apperr.Storage(ctx, err)
	}
	s.obsMetrics.RecordWebhookEvent(ctx, event.Provider(), string(outcome))
	s.log.Info("webhook processed",
		zap.String("event_id", event.ID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

// fail records cause on the event and returns it. The update runs on a
// fresh context so a cancelled request still leaves a trace.
func (s *Service) fail(ctx context.Context, event *domain.WebhookEvent, cause error) error {
	event.RecordError(cause.Error(), s.now())
	if err := s.repo.Update(context.WithoutCancel(ctx), s.db, event); err != nil {
		s.log.Error("record webhook error", zap.String("event_id", event.ID().String()), zap.Error(err))
	}
	s.obsMetrics.RecordWebhookEvent(ctx, event.Provider(), "error")
	s.log.Warn("webhook processing failed",
		zap.String("event_id", event.ID().String()),
		zap.Error(cause),
	)
	return cause
}
