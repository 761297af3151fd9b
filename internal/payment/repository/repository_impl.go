package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type paymentRow struct {
	ID             snowflake.ID    `gorm:"column:id"`
	OrderID        string          `gorm:"column:order_id"`
	CustomerID     snowflake.ID    `gorm:"column:customer_id"`
	Amount         decimal.Decimal `gorm:"column:amount"`
	InstrumentCode *string         `gorm:"column:instrument_code"`
	ExternalID     *string         `gorm:"column:external_id"`
	Status         string          `gorm:"column:status"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

type detailsRow struct {
	paymentRow
	CustomerName *string `gorm:"column:customer_name"`
}

func (r paymentRow) toDomain() *domain.Payment {
	// order ids are validated on the way in; a malformed row maps to uuid.Nil
	orderID, _ := uuid.Parse(strings.TrimSpace(r.OrderID))
	return domain.RestorePayment(domain.PaymentState{
		ID:             r.ID,
		OrderID:        orderID,
		CustomerID:     r.CustomerID,
		Amount:         r.Amount,
		InstrumentCode: r.InstrumentCode,
		ExternalID:     r.ExternalID,
		Status:         domain.Status(r.Status),
		PaidAt:         r.PaidAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	})
}

const selectColumns = `SELECT id, order_id, customer_id, amount, instrument_code, external_id,
	status, paid_at, created_at, updated_at
	FROM payments`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	s := payment.State()
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, customer_id, amount, instrument_code, external_id,
			status, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.OrderID.String(),
		s.CustomerID,
		s.Amount,
		s.InstrumentCode,
		s.ExternalID,
		string(s.Status),
		s.PaidAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	s := payment.State()
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET instrument_code = ?, external_id = ?, status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ?`,
		s.InstrumentCode,
		s.ExternalID,
		string(s.Status),
		s.PaidAt,
		s.UpdatedAt,
		s.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID uuid.UUID) (*domain.Payment, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE order_id = ?`, orderID.String())
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE external_id = ? ORDER BY created_at DESC LIMIT 1`, externalID)
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*domain.Payment, error) {
	return r.findMany(ctx, db, selectColumns+` WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]*domain.Payment, error) {
	return r.findMany(ctx, db, selectColumns+` WHERE status = ? ORDER BY created_at ASC, id ASC`, string(status))
}

func (r *repo) FindDetailsByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentDetails, error) {
	var row detailsRow
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.order_id, p.customer_id, p.amount, p.instrument_code, p.external_id,
			p.status, p.paid_at, p.created_at, p.updated_at, c.name AS customer_name
		 FROM payments p
		 LEFT JOIN customers c ON c.id = p.customer_id
		 WHERE p.id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}

	details := &domain.PaymentDetails{Payment: *row.toDomain()}
	if row.CustomerName != nil {
		details.CustomerName = *row.CustomerName
	}
	return details, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var row paymentRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toDomain(), nil
}

func (r *repo) findMany(ctx context.Context, db *gorm.DB, query string, args ...any) ([]*domain.Payment, error) {
	var rows []paymentRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toDomain())
	}
	return payments, nil
}
