package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/qrpay/internal/apperr"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/qrpay/internal/outbox/domain"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const msgDuplicateOrder = "a payment already exists for this order"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Gateway    domain.Gateway
	Outbox     outboxdomain.Publisher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	gateway    domain.Gateway
	outbox     outboxdomain.Publisher
	obsMetrics *obsmetrics.Metrics
	now        func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		gateway:    p.Gateway,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a pending payment for an order and, when asked, requests
// a QR instrument from the gateway. A gateway failure leaves the pending
// payment in place so the instrument can be attached later.
func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	customerID, err := parseCustomerID(req.CustomerID)
	if err != nil {
		return domain.Payment{}, err
	}

	existing, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.Payment{}, apperr.Storage(ctx, err)
	}
	if existing != nil {
		s.obsMetrics.RecordPaymentCreated(ctx, "duplicate")
		return domain.Payment{}, apperr.Conflict(domain.ErrDuplicateOrder, msgDuplicateOrder)
	}

	payment, err := domain.NewPayment(s.genID.Generate(), orderID, customerID, req.Amount, s.now())
	if err != nil {
		s.obsMetrics.RecordPaymentCreated(ctx, "invalid")
		return domain.Payment{}, err
	}

	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.obsMetrics.RecordPaymentCreated(ctx, "duplicate")
			return domain.Payment{}, apperr.Conflict(domain.ErrDuplicateOrder, msgDuplicateOrder)
		}
		s.obsMetrics.RecordPaymentCreated(ctx, "error")
		return domain.Payment{}, apperr.Storage(ctx, err)
	}
	s.obsMetrics.RecordPaymentCreated(ctx, "success")
	s.log.Info("payment created",
		zap.String("payment_id", payment.ID().String()),
		zap.String("order_id", orderID.String()),
	)

	if req.GenerateInstrument {
		if err := s.requestInstrument(ctx, payment); err != nil {
			return domain.Payment{}, err
		}
	}

	return *payment, nil
}

func (s *Service) AttachInstrument(ctx context.Context, id string) (domain.Payment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status() != domain.StatusPending {
		return domain.Payment{}, apperr.Conflict(domain.ErrNotPending, "only pending payments can receive an instrument")
	}
	if _, ok := payment.InstrumentCode(); ok {
		return domain.Payment{}, apperr.Conflict(domain.ErrInstrumentAttached, "payment already has an instrument")
	}

	if err := s.requestInstrument(ctx, payment); err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

func (s *Service) requestInstrument(ctx context.Context, payment *domain.Payment) error {
	provider := s.gateway.Provider()
	instrument, err := s.gateway.GenerateInstrument(ctx, payment.Amount(), payment.Description(), payment.OrderID())
	if err != nil {
		s.obsMetrics.RecordGatewayRequest(ctx, provider, "generate_instrument", "error")
		s.log.Warn("gateway instrument request failed",
			zap.String("payment_id", payment.ID().String()),
			zap.String("provider", provider),
			zap.Error(err),
		)
		return apperr.Upstream(ctx, fmt.Errorf("%w: %w", domain.ErrGatewayFailed, err))
	}
	s.obsMetrics.RecordGatewayRequest(ctx, provider, "generate_instrument", "success")

	if err := payment.AttachInstrument(instrument.Code, instrument.ExternalID, s.now()); err != nil {
		return apperr.Upstream(ctx, fmt.Errorf("%w: %w", domain.ErrGatewayFailed, err))
	}
	if err := s.repo.Update(ctx, s.db, payment); err != nil {
		return apperr.Storage(ctx, err)
	}

	s.log.Info("payment instrument attached",
		zap.String("payment_id", payment.ID().String()),
		zap.String("external_id", instrument.ExternalID),
	)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Payment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

func (s *Service) GetDisplay(ctx context.Context, id string) (domain.PaymentDetails, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	details, err := s.repo.FindDetailsByID(ctx, s.db, paymentID)
	if err != nil {
		return domain.PaymentDetails{}, apperr.Storage(ctx, err)
	}
	if details == nil {
		return domain.PaymentDetails{}, apperr.NotFound(domain.ErrNotFound)
	}
	return *details, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	parsed, err := parseOrderID(orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.repo.FindByOrderID(ctx, s.db, parsed)
	if err != nil {
		return domain.Payment{}, apperr.Storage(ctx, err)
	}
	if payment == nil {
		return domain.Payment{}, apperr.NotFound(domain.ErrNotFound)
	}
	return *payment, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	parsed, err := parseCustomerID(customerID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByCustomer(ctx, s.db, parsed)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}
	return flatten(items), nil
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]domain.Payment, error) {
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStatus(ctx, s.db, parsed)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}
	return flatten(items), nil
}

func (s *Service) Confirm(ctx context.Context, req domain.ConfirmPaymentRequest) (domain.Payment, error) {
	payment, err := s.loadByExternalID(ctx, req.ExternalID)
	if err != nil {
		return domain.Payment{}, err
	}

	confirmedAt := req.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = s.now()
	}
	if err := payment.Confirm(confirmedAt.UTC(), s.now()); err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(domain.StatusApproved), "rejected")
		return domain.Payment{}, err
	}
	return s.persistTransition(ctx, payment, domain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, externalID string) (domain.Payment, error) {
	payment, err := s.loadByExternalID(ctx, externalID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := payment.Reject(s.now()); err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(domain.StatusRejected), "rejected")
		return domain.Payment{}, err
	}
	return s.persistTransition(ctx, payment, domain.StatusRejected)
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Payment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := payment.Cancel(s.now()); err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(domain.StatusCancelled), "rejected")
		return domain.Payment{}, err
	}
	return s.persistTransition(ctx, payment, domain.StatusCancelled)
}

func (s *Service) CancelByExternalID(ctx context.Context, externalID string) (domain.Payment, error) {
	payment, err := s.loadByExternalID(ctx, externalID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := payment.Cancel(s.now()); err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(domain.StatusCancelled), "rejected")
		return domain.Payment{}, err
	}
	return s.persistTransition(ctx, payment, domain.StatusCancelled)
}

func (s *Service) SetStatus(ctx context.Context, req domain.SetStatusRequest) (domain.Payment, error) {
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := payment.SetStatus(status, s.now()); err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(status), "rejected")
		return domain.Payment{}, err
	}
	return s.persistTransition(ctx, payment, status)
}

// QueryProviderStatus asks the gateway for its view of the payment. The
// stored payment is never modified here.
func (s *Service) QueryProviderStatus(ctx context.Context, id string) (domain.ProviderStatus, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return domain.ProviderStatus{}, err
	}
	externalID, ok := payment.ExternalID()
	if !ok {
		return domain.ProviderStatus{}, apperr.New(apperr.KindNotFound, domain.ErrMissingExternalID, "payment has no external id yet")
	}

	provider := s.gateway.Provider()
	status, err := s.gateway.QueryStatus(ctx, externalID)
	if err != nil {
		s.obsMetrics.RecordGatewayRequest(ctx, provider, "query_status", "error")
		return domain.ProviderStatus{}, apperr.Upstream(ctx, fmt.Errorf("%w: %w", domain.ErrGatewayFailed, err))
	}
	s.obsMetrics.RecordGatewayRequest(ctx, provider, "query_status", "success")
	return status, nil
}

// persistTransition stores the new status and its outbound notification in
// one transaction, so a failed notification leaves the payment untouched
// and the transition can simply be retried.
func (s *Service) persistTransition(ctx context.Context, payment *domain.Payment, status domain.Status) (domain.Payment, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, payment); err != nil {
			return apperr.Storage(ctx, err)
		}
		return s.notify(ctx, tx, *payment, status)
	})
	if err != nil {
		s.obsMetrics.RecordPaymentTransition(ctx, string(status), "error")
		return domain.Payment{}, err
	}
	s.obsMetrics.RecordPaymentTransition(ctx, string(status), "success")
	s.log.Info("payment status changed",
		zap.String("payment_id", payment.ID().String()),
		zap.String("status", string(status)),
	)
	return *payment, nil
}

func (s *Service) notify(ctx context.Context, tx *gorm.DB, payment domain.Payment, status domain.Status) error {
	var err error
	switch status {
	case domain.StatusApproved:
		err = s.outbox.PaymentConfirmed(ctx, tx, payment)
	case domain.StatusRejected, domain.StatusCancelled:
		err = s.outbox.PaymentFailed(ctx, tx, payment, string(status))
	default:
		return nil
	}
	if err != nil {
		s.log.Error("store payment notification",
			zap.String("payment_id", payment.ID().String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return apperr.Storage(ctx, err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Payment, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}
	if payment == nil {
		return nil, apperr.NotFound(domain.ErrNotFound)
	}
	return payment, nil
}

func (s *Service) loadByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperr.Validation(domain.ErrInvalidExternalID)
	}
	payment, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}
	if payment == nil {
		return nil, apperr.NotFound(domain.ErrNotFound)
	}
	return payment, nil
}

func flatten(items []*domain.Payment) []domain.Payment {
	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return payments
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, apperr.Validation(domain.ErrInvalidID)
	}
	return id, nil
}

func parseCustomerID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, apperr.Validation(domain.ErrInvalidCustomerID)
	}
	return id, nil
}

func parseOrderID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.Validation(domain.ErrInvalidOrderID)
	}
	return id, nil
}
