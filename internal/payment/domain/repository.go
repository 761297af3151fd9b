package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID uuid.UUID) (*Payment, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Payment, error)
	// ListByCustomer returns newest first.
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*Payment, error)
	// ListByStatus returns oldest first.
	ListByStatus(ctx context.Context, db *gorm.DB, status Status) ([]*Payment, error)
	// FindDetailsByID joins the customer's name onto the payment.
	FindDetailsByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentDetails, error)
}
