package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	Update(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByTaxID(ctx context.Context, db *gorm.DB, taxID string) (*Customer, error)
	// List returns every customer ordered by name.
	List(ctx context.Context, db *gorm.DB) ([]*Customer, error)
}
