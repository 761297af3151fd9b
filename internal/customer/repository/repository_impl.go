package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type customerRow struct {
	ID        snowflake.ID `gorm:"column:id"`
	Name      string       `gorm:"column:name"`
	Email     *string      `gorm:"column:email"`
	TaxID     string       `gorm:"column:tax_id"`
	CreatedAt time.Time    `gorm:"column:created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

func (r customerRow) toDomain() *domain.Customer {
	return domain.RestoreCustomer(r.ID, r.Name, r.Email, r.TaxID, r.CreatedAt, r.UpdatedAt)
}

const selectColumns = `SELECT id, name, email, tax_id, created_at, updated_at FROM customers`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, name, email, tax_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		customer.ID(),
		customer.Name(),
		customer.EmailPtr(),
		customer.TaxID(),
		customer.CreatedAt(),
		customer.UpdatedAt(),
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET name = ?, email = ?, updated_at = ? WHERE id = ?`,
		customer.Name(),
		customer.EmailPtr(),
		customer.UpdatedAt(),
		customer.ID(),
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByTaxID(ctx context.Context, db *gorm.DB, taxID string) (*domain.Customer, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE tax_id = ?`, taxID)
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Customer, error) {
	var rows []customerRow
	if err := db.WithContext(ctx).Raw(selectColumns + ` ORDER BY name ASC, id ASC`).Scan(&rows).Error; err != nil {
		return nil, err
	}
	customers := make([]*domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.toDomain())
	}
	return customers, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Customer, error) {
	var row customerRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toDomain(), nil
}
