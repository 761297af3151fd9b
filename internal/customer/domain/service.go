package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/qrpay/internal/apperr"
)

type CreateCustomerRequest struct {
	Name  string
	Email string
	TaxID string
}

type UpdateCustomerRequest struct {
	ID    string
	Name  string
	Email string
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	GetByTaxID(ctx context.Context, taxID string) (Customer, error)
	List(context.Context) ([]Customer, error)
	Update(context.Context, UpdateCustomerRequest) (Customer, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidTaxID = errors.New("invalid_tax_id")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
	ErrTaxIDTaken   = errors.New("tax_id_taken")
)

var (
	errNameRequired   = apperr.New(apperr.KindValidation, ErrInvalidName, "name is required")
	errNameTooLong    = apperr.New(apperr.KindValidation, ErrInvalidName, "name must be at most 200 characters")
	errEmailTooLong   = apperr.New(apperr.KindValidation, ErrInvalidEmail, "email must be at most 200 characters")
	errEmailMalformed = apperr.New(apperr.KindValidation, ErrInvalidEmail, "email is not a valid address")
	errTaxIDLength    = apperr.New(apperr.KindValidation, ErrInvalidTaxID, "tax id must have 11 digits")
	errTaxIDRepeated  = apperr.New(apperr.KindValidation, ErrInvalidTaxID, "invalid CPF: all digits are equal")
)
