package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
	outboxdomain "github.com/smallbiznis/qrpay/internal/outbox/domain"
	outboxrepo "github.com/smallbiznis/qrpay/internal/outbox/repository"
	outboxservice "github.com/smallbiznis/qrpay/internal/outbox/service"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/payment/repository"
	"github.com/smallbiznis/qrpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Provider() string { return "mock" }

func (m *mockGateway) GenerateInstrument(ctx context.Context, amount decimal.Decimal, description string, orderID uuid.UUID) (domain.Instrument, error) {
	args := m.Called(ctx, amount, description, orderID)
	return args.Get(0).(domain.Instrument), args.Error(1)
}

func (m *mockGateway) QueryStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(domain.ProviderStatus), args.Error(1)
}

// failingPublisher refuses the next failures notifications before delegating.
type failingPublisher struct {
	outboxdomain.Publisher
	failures int
}

func (p *failingPublisher) PaymentConfirmed(ctx context.Context, db *gorm.DB, payment domain.Payment) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("outbox insert failed")
	}
	return p.Publisher.PaymentConfirmed(ctx, db, payment)
}

const customerID = "1790000000000000001"

func newTestService(t *testing.T, gw *mockGateway) (domain.Service, *gorm.DB) {
	t.Helper()
	svc, db, _ := newTestServiceWithRepo(t, gw, repository.Provide())
	return svc, db
}

func newTestServiceWithRepo(t *testing.T, gw *mockGateway, repo domain.Repository) (domain.Service, *gorm.DB, *failingPublisher) {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	publisher := &failingPublisher{Publisher: outboxservice.NewPublisher(outboxservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: outboxrepo.Provide(),
	})}
	return New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repo,
		Gateway: gw,
		Outbox:  publisher,
	}), db, publisher
}

func countEvents(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table("outbox_events").Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func createRequest(orderID uuid.UUID, amount string, generate bool) domain.CreatePaymentRequest {
	return domain.CreatePaymentRequest{
		OrderID:            orderID.String(),
		CustomerID:         customerID,
		Amount:             decimal.RequireFromString(amount),
		GenerateInstrument: generate,
	}
}

func TestCreateWithInstrument(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	orderID := uuid.New()

	gw.On("GenerateInstrument", mock.Anything, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("45.90"))
	}), "Pagamento Pedido #"+orderID.String(), orderID).
		Return(domain.Instrument{Code: "000201-pix", ExternalID: "MP-0011223344556677", ProviderStatus: "pending"}, nil).
		Once()

	payment, err := svc.Create(ctx, createRequest(orderID, "45.90", true))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payment.Status())
	code, _ := payment.InstrumentCode()
	assert.Equal(t, "000201-pix", code)

	stored, err := svc.GetByOrderID(ctx, orderID.String())
	require.NoError(t, err)
	ext, ok := stored.ExternalID()
	require.True(t, ok)
	assert.Equal(t, "MP-0011223344556677", ext)
	assert.True(t, decimal.RequireFromString("45.90").Equal(stored.Amount()))
	gw.AssertExpectations(t)
}

func TestCreateRejectsDuplicateOrder(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, &mockGateway{})
	orderID := uuid.New()

	_, err := svc.Create(ctx, createRequest(orderID, "10", false))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createRequest(orderID, "10", false))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	assert.EqualError(t, err, "a payment already exists for this order")
	assert.Equal(t, int64(1), testutil.Count(t, db, "payments"))
}

func TestCreateRejectsNonPositiveAmountWithoutWriting(t *testing.T) {
	gw := &mockGateway{}
	svc, db := newTestService(t, gw)

	_, err := svc.Create(context.Background(), createRequest(uuid.New(), "0", true))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int64(0), testutil.Count(t, db, "payments"))
	gw.AssertNotCalled(t, "GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGatewayFailureLeavesPendingPayment(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	orderID := uuid.New()

	gw.On("GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, orderID).
		Return(domain.Instrument{}, errors.New("connection refused")).Once()

	_, err := svc.Create(ctx, createRequest(orderID, "12.50", true))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrGatewayFailed)

	stored, err := svc.GetByOrderID(ctx, orderID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status())
	_, hasCode := stored.InstrumentCode()
	assert.False(t, hasCode)

	gw.On("GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, orderID).
		Return(domain.Instrument{Code: "pix", ExternalID: "MP-1"}, nil).Once()

	attached, err := svc.AttachInstrument(ctx, stored.ID().String())
	require.NoError(t, err)
	code, _ := attached.InstrumentCode()
	assert.Equal(t, "pix", code)

	_, err = svc.AttachInstrument(ctx, stored.ID().String())
	assert.ErrorIs(t, err, domain.ErrInstrumentAttached)
}

func TestCreateGatewayTimeoutIsUpstream(t *testing.T) {
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)

	gw.On("GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Instrument{}, fmt.Errorf("post /v1/payments: %w", context.DeadlineExceeded)).Once()

	_, err := svc.Create(context.Background(), createRequest(uuid.New(), "1", true))
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateCallerCancellationDuringGatewayCall(t *testing.T) {
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	ctx, cancel := context.WithCancel(context.Background())

	gw.On("GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(domain.Instrument{}, context.Canceled).Once()

	_, err := svc.Create(ctx, createRequest(uuid.New(), "1", true))
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}

// racingRepo simulates a concurrent insert for the same order winning
// between lookup and write.
type racingRepo struct {
	domain.Repository
}

func (racingRepo) FindByOrderID(context.Context, *gorm.DB, uuid.UUID) (*domain.Payment, error) {
	return nil, nil
}

func (racingRepo) Insert(context.Context, *gorm.DB, *domain.Payment) error {
	return gorm.ErrDuplicatedKey
}

func TestCreateMapsStorageUniqueViolationToConflict(t *testing.T) {
	gw := &mockGateway{}
	svc, _, _ := newTestServiceWithRepo(t, gw, racingRepo{})

	_, err := svc.Create(context.Background(), createRequest(uuid.New(), "10", true))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	gw.AssertNotCalled(t, "GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func createWithExternalID(t *testing.T, svc domain.Service, gw *mockGateway, externalID string) domain.Payment {
	t.Helper()
	orderID := uuid.New()
	gw.On("GenerateInstrument", mock.Anything, mock.Anything, mock.Anything, orderID).
		Return(domain.Instrument{Code: "pix", ExternalID: externalID}, nil).Once()
	payment, err := svc.Create(context.Background(), createRequest(orderID, "30", true))
	require.NoError(t, err)
	return payment
}

func TestConfirmFlow(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	created := createWithExternalID(t, svc, gw, "MP-CONFIRM")
	confirmedAt := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

	confirmed, err := svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-CONFIRM", ConfirmedAt: confirmedAt})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, confirmed.Status())

	stored, err := svc.GetByID(ctx, created.ID().String())
	require.NoError(t, err)
	paidAt, ok := stored.PaidAt()
	require.True(t, ok)
	assert.True(t, confirmedAt.Equal(paidAt))

	_, err = svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-CONFIRM", ConfirmedAt: confirmedAt})
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)

	_, err = svc.Reject(ctx, "MP-CONFIRM")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.EqualError(t, err, "cannot reject an approved payment")

	_, err = svc.Cancel(ctx, created.ID().String())
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestConfirmRollsBackWhenNotificationFails(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, db, publisher := newTestServiceWithRepo(t, gw, repository.Provide())
	created := createWithExternalID(t, svc, gw, "MP-OUTBOX")
	publisher.failures = 1

	_, err := svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-OUTBOX", ConfirmedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	stored, err := svc.GetByID(ctx, created.ID().String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status())
	assert.Equal(t, int64(0), testutil.Count(t, db, "outbox_events"))

	confirmed, err := svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-OUTBOX", ConfirmedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, confirmed.Status())
	assert.Equal(t, int64(1), countEvents(t, db, outboxdomain.EventTypePaymentConfirmed))

	_, err = svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-OUTBOX", ConfirmedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
	assert.Equal(t, int64(1), countEvents(t, db, outboxdomain.EventTypePaymentConfirmed))
}

func TestTransitionsQueueNotifications(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, db := newTestService(t, gw)
	createWithExternalID(t, svc, gw, "MP-REJECT")
	cancelled := createWithExternalID(t, svc, gw, "MP-CANCEL")
	pending, err := svc.Create(ctx, createRequest(uuid.New(), "4", false))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, "MP-REJECT")
	require.NoError(t, err)
	got, err := svc.CancelByExternalID(ctx, "MP-CANCEL")
	require.NoError(t, err)
	assert.Equal(t, cancelled.ID(), got.ID())
	assert.Equal(t, domain.StatusCancelled, got.Status())
	assert.Equal(t, int64(2), countEvents(t, db, outboxdomain.EventTypePaymentFailed))

	_, err = svc.SetStatus(ctx, domain.SetStatusRequest{ID: pending.ID().String(), Status: "rejected"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, domain.SetStatusRequest{ID: pending.ID().String(), Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), countEvents(t, db, outboxdomain.EventTypePaymentFailed))
	assert.Equal(t, int64(0), countEvents(t, db, outboxdomain.EventTypePaymentConfirmed))
}

func TestConfirmUnknownExternalID(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{})

	_, err := svc.Confirm(context.Background(), domain.ConfirmPaymentRequest{ExternalID: "MP-NOPE", ConfirmedAt: time.Now()})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Reject(context.Background(), "MP-NOPE")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRejectThenConfirm(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	createWithExternalID(t, svc, gw, "MP-REJ")

	rejected, err := svc.Reject(ctx, "MP-REJ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status())

	confirmed, err := svc.Confirm(ctx, domain.ConfirmPaymentRequest{ExternalID: "MP-REJ", ConfirmedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, confirmed.Status())
}

func TestSetStatusAndListByStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &mockGateway{})

	first, err := svc.Create(ctx, createRequest(uuid.New(), "5", false))
	require.NoError(t, err)
	second, err := svc.Create(ctx, createRequest(uuid.New(), "6", false))
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, domain.SetStatusRequest{ID: first.ID().String(), Status: "approved"})
	require.NoError(t, err)
	_, ok := updated.PaidAt()
	assert.True(t, ok)

	_, err = svc.SetStatus(ctx, domain.SetStatusRequest{ID: first.ID().String(), Status: "pending"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	pending, err := svc.ListByStatus(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID(), pending[0].ID())

	_, err = svc.ListByStatus(ctx, "unknown")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListByCustomerNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &mockGateway{})
	s := svc.(*Service)

	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		p, err := svc.Create(ctx, createRequest(uuid.New(), "9.99", false))
		require.NoError(t, err)
		ids = append(ids, p.ID())
	}

	items, err := svc.ListByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, ids[2], items[0].ID())
	assert.Equal(t, ids[0], items[2].ID())

	none, err := svc.ListByCustomer(ctx, "1790000000000000099")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryProviderStatus(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)

	bare, err := svc.Create(ctx, createRequest(uuid.New(), "3", false))
	require.NoError(t, err)
	_, err = svc.QueryProviderStatus(ctx, bare.ID().String())
	assert.ErrorIs(t, err, domain.ErrMissingExternalID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	withExt := createWithExternalID(t, svc, gw, "MP-Q")
	gw.On("QueryStatus", mock.Anything, "MP-Q").
		Return(domain.ProviderStatus{ExternalID: "MP-Q", Status: "approved"}, nil).Once()

	status, err := svc.QueryProviderStatus(ctx, withExt.ID().String())
	require.NoError(t, err)
	assert.Equal(t, "approved", status.Status)

	stored, err := svc.GetByID(ctx, withExt.ID().String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status())

	_, err = svc.QueryProviderStatus(ctx, "1790000000000000042")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetDisplayJoinsCustomerName(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, &mockGateway{})

	require.NoError(t, db.Exec(
		`INSERT INTO customers (id, name, email, tax_id, created_at, updated_at) VALUES (?, ?, NULL, ?, ?, ?)`,
		customerID, "Maria Souza", "12345678901", time.Now(), time.Now(),
	).Error)

	created, err := svc.Create(ctx, createRequest(uuid.New(), "7", false))
	require.NoError(t, err)

	details, err := svc.GetDisplay(ctx, created.ID().String())
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", details.CustomerName)
	assert.Equal(t, created.ID(), details.Payment.ID())
}

func TestInvalidIdentifiers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &mockGateway{})

	_, err := svc.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByOrderID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)

	_, err = svc.Create(ctx, domain.CreatePaymentRequest{OrderID: uuid.NewString(), CustomerID: "x", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomerID)
}

func TestCancelledContextSurfacesAsCancelled(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetByOrderID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}
