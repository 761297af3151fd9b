package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/apperr"
	"github.com/smallbiznis/qrpay/internal/customer/domain"
	"github.com/smallbiznis/qrpay/internal/customer/repository"
	"github.com/smallbiznis/qrpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, repo domain.Repository) (domain.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if repo == nil {
		repo = repository.Provide()
	}
	return New(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repo}), db
}

func TestCreateThenGetByTaxID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{
		Name:  "João Silva",
		Email: "joao@example.com",
		TaxID: "123.456.789-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678901", created.TaxID())

	found, err := svc.GetByTaxID(ctx, "123.456.789-01")
	require.NoError(t, err)
	assert.Equal(t, created.ID(), found.ID())
	assert.Equal(t, "João Silva", found.Name())
	assert.Equal(t, "joao@example.com", found.Email())
}

func TestCreateRejectsDuplicateTaxID(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	_, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: "João Silva", Email: "joao@example.com", TaxID: "123.456.789-01"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateCustomerRequest{Name: "x", Email: "y", TaxID: "12345678901"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrTaxIDTaken)
	assert.Equal(t, int64(1), testutil.Count(t, db, "customers"))
}

func TestCreatePropagatesValidation(t *testing.T) {
	svc, db := newTestService(t, nil)

	_, err := svc.Create(context.Background(), domain.CreateCustomerRequest{Name: "Ana", TaxID: "111.111.111-11"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int64(0), testutil.Count(t, db, "customers"))
}

// racingRepo simulates a concurrent insert winning between lookup and write.
type racingRepo struct {
	domain.Repository
}

func (racingRepo) FindByTaxID(context.Context, *gorm.DB, string) (*domain.Customer, error) {
	return nil, nil
}

func (racingRepo) Insert(context.Context, *gorm.DB, *domain.Customer) error {
	return errors.New("UNIQUE constraint failed: customers.tax_id")
}

func TestCreateMapsStorageUniqueViolationToConflict(t *testing.T) {
	svc, _ := newTestService(t, racingRepo{})

	_, err := svc.Create(context.Background(), domain.CreateCustomerRequest{Name: "Ana", TaxID: "12345678901"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestListOrdersByName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	for _, req := range []domain.CreateCustomerRequest{
		{Name: "Carla", TaxID: "12345678901"},
		{Name: "Ana", TaxID: "12345678902"},
		{Name: "Bruno", TaxID: "12345678903"},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"Ana", "Bruno", "Carla"}, []string{items[0].Name(), items[1].Name(), items[2].Name()})
}

func TestGetByIDErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.GetByID(context.Background(), domain.GetCustomerRequest{ID: "abc"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.GetByID(context.Background(), domain.GetCustomerRequest{ID: "12345"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateMutatesNameAndEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: "Ana", Email: "ana@example.com", TaxID: "12345678901"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, domain.UpdateCustomerRequest{ID: created.ID().String(), Name: "Ana Paula", Email: "ana.paula@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Paula", updated.Name())

	stored, err := svc.GetByID(ctx, domain.GetCustomerRequest{ID: created.ID().String()})
	require.NoError(t, err)
	assert.Equal(t, "Ana Paula", stored.Name())
	assert.Equal(t, "ana.paula@example.com", stored.Email())
	assert.Equal(t, "12345678901", stored.TaxID())
}

func TestUpdateUnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Update(context.Background(), domain.UpdateCustomerRequest{ID: "42", Name: "Ana"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCancelledContextSurfacesAsCancelled(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := svc.GetByTaxID(ctx, "12345678901")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}
