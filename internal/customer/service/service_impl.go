package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/apperr"
	"github.com/smallbiznis/qrpay/internal/customer/domain"
	"github.com/smallbiznis/qrpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const msgTaxIDTaken = "customer already exists for this tax id"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	now   func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	taxID := domain.NormalizeTaxID(req.TaxID)

	existing, err := s.repo.FindByTaxID(ctx, s.db, taxID)
	if err != nil {
		return domain.Customer{}, apperr.Storage(ctx, err)
	}
	if existing != nil {
		return domain.Customer{}, apperr.Conflict(domain.ErrTaxIDTaken, msgTaxIDTaken)
	}

	customer, err := domain.NewCustomer(s.genID.Generate(), req.Name, req.Email, taxID, s.now())
	if err != nil {
		return domain.Customer{}, err
	}

	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Customer{}, apperr.Conflict(domain.ErrTaxIDTaken, msgTaxIDTaken)
		}
		return domain.Customer{}, apperr.Storage(ctx, err)
	}

	s.log.Info("customer created", zap.String("customer_id", customer.ID().String()))
	return *customer, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, apperr.Storage(ctx, err)
	}
	if customer == nil {
		return domain.Customer{}, apperr.NotFound(domain.ErrNotFound)
	}
	return *customer, nil
}

func (s *Service) GetByTaxID(ctx context.Context, taxID string) (domain.Customer, error) {
	customer, err := s.repo.FindByTaxID(ctx, s.db, domain.NormalizeTaxID(taxID))
	if err != nil {
		return domain.Customer{}, apperr.Storage(ctx, err)
	}
	if customer == nil {
		return domain.Customer{}, apperr.NotFound(domain.ErrNotFound)
	}
	return *customer, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Customer, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, apperr.Storage(ctx, err)
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}
	return customers, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, apperr.Storage(ctx, err)
	}
	if customer == nil {
		return domain.Customer{}, apperr.NotFound(domain.ErrNotFound)
	}

	if err := customer.Update(req.Name, req.Email, s.now()); err != nil {
		return domain.Customer{}, err
	}
	if err := s.repo.Update(ctx, s.db, customer); err != nil {
		return domain.Customer{}, apperr.Storage(ctx, err)
	}

	s.log.Info("customer updated", zap.String("customer_id", customer.ID().String()))
	return *customer, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, apperr.Validation(domain.ErrInvalidID)
	}
	return id, nil
}
