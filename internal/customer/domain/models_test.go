package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/qrpay/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestNewCustomerNormalizesInput(t *testing.T) {
	c, err := NewCustomer(1, "  João Silva ", " joao@example.com ", "123.456.789-01", now)
	require.NoError(t, err)

	assert.Equal(t, "João Silva", c.Name())
	assert.Equal(t, "joao@example.com", c.Email())
	assert.Equal(t, "12345678901", c.TaxID())
	assert.Equal(t, now, c.CreatedAt())
}

func TestNewCustomerBlankEmailIsAbsent(t *testing.T) {
	c, err := NewCustomer(1, "Maria", "   ", "98765432100", now)
	require.NoError(t, err)
	assert.Nil(t, c.EmailPtr())
	assert.Equal(t, "", c.Email())
}

func TestNewCustomerRejectsRepeatedDigitTaxIDs(t *testing.T) {
	for d := 0; d <= 9; d++ {
		taxID := strings.Repeat(fmt.Sprint(d), 11)
		_, err := NewCustomer(1, "Maria", "", taxID, now)
		require.Error(t, err, taxID)
		assert.True(t, errors.Is(err, ErrInvalidTaxID))
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		assert.Contains(t, err.Error(), "CPF")
	}
}

func TestNewCustomerValidation(t *testing.T) {
	cases := []struct {
		name    string
		cname   string
		email   string
		taxID   string
		wantErr error
	}{
		{"empty name", "  ", "", "12345678901", ErrInvalidName},
		{"long name", strings.Repeat("a", 201), "", "12345678901", ErrInvalidName},
		{"bad email", "Ana", "not-an-email", "12345678901", ErrInvalidEmail},
		{"display name email", "Ana", "Ana <ana@example.com>", "12345678901", ErrInvalidEmail},
		{"long email", "Ana", strings.Repeat("a", 190) + "@example.com", "12345678901", ErrInvalidEmail},
		{"short tax id", "Ana", "", "123.456", ErrInvalidTaxID},
		{"long tax id", "Ana", "", "123456789012", ErrInvalidTaxID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCustomer(1, tc.cname, tc.email, tc.taxID, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestNameLengthCountsCharacters(t *testing.T) {
	_, err := NewCustomer(1, strings.Repeat("ã", 200), "", "12345678901", now)
	assert.NoError(t, err)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	c, err := NewCustomer(1, "Ana", "ana@example.com", "12345678901", now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	err = c.Update("Ana Paula", "broken", later)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Equal(t, "Ana", c.Name())
	assert.Equal(t, now, c.UpdatedAt())

	require.NoError(t, c.Update(" Ana Paula ", "", later))
	assert.Equal(t, "Ana Paula", c.Name())
	assert.Nil(t, c.EmailPtr())
	assert.Equal(t, "12345678901", c.TaxID())
	assert.Equal(t, later, c.UpdatedAt())
}
