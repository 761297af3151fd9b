package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
)

const (
	maxNameLength  = 200
	maxEmailLength = 200
)

var validate = validator.New()

// Customer is mutable only through Update; tax id and id never change
// after construction.
type Customer struct {
	id        snowflake.ID
	name      string
	email     *string
	taxID     string
	createdAt time.Time
	updatedAt time.Time
}

// NewCustomer validates input and builds a customer. The tax id may be
// formatted; it is stored digits-only.
func NewCustomer(id snowflake.ID, name, email, taxID string, now time.Time) (*Customer, error) {
	cleanName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	cleanEmail, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	normalized := NormalizeTaxID(taxID)
	if err := validateTaxID(normalized); err != nil {
		return nil, err
	}

	return &Customer{
		id:        id,
		name:      cleanName,
		email:     cleanEmail,
		taxID:     normalized,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RestoreCustomer rebuilds a customer from stored state without validation.
func RestoreCustomer(id snowflake.ID, name string, email *string, taxID string, createdAt, updatedAt time.Time) *Customer {
	return &Customer{
		id:        id,
		name:      name,
		email:     email,
		taxID:     taxID,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// Update replaces name and email. Nothing changes if either is invalid.
func (c *Customer) Update(name, email string, now time.Time) error {
	cleanName, err := validateName(name)
	if err != nil {
		return err
	}
	cleanEmail, err := validateEmail(email)
	if err != nil {
		return err
	}
	c.name = cleanName
	c.email = cleanEmail
	c.updatedAt = now
	return nil
}

func (c Customer) ID() snowflake.ID { return c.id }

func (c Customer) Name() string { return c.name }

func (c Customer) TaxID() string { return c.taxID }

func (c Customer) CreatedAt() time.Time { return c.createdAt }

func (c Customer) UpdatedAt() time.Time { return c.updatedAt }

// Email returns the address, or "" when none was given.
func (c Customer) Email() string {
	if c.email == nil {
		return ""
	}
	return *c.email
}

// EmailPtr returns the stored address pointer for persistence.
func (c Customer) EmailPtr() *string {
	if c.email == nil {
		return nil
	}
	email := *c.email
	return &email
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errNameTooLong
	}
	return name, nil
}

func validateEmail(raw string) (*string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(email) > maxEmailLength {
		return nil, errEmailTooLong
	}
	if err := validate.Var(email, "email"); err != nil {
		return nil, errEmailMalformed
	}
	return &email, nil
}
