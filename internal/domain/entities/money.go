package entities

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/errors"
)

func init() {
	// Division needs enough precision that cent-level amounts survive
	// chained arithmetic without drift.
	decimal.DivisionPrecision = 28
}

// Money is an exact decimal amount tagged with an ISO 4217 currency code.
// All balance and transfer arithmetic goes through this type; raw decimals
// never cross a currency boundary unchecked.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney creates Money from a decimal amount.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, errors.ValidationError("currency", fmt.Sprintf("invalid currency code: %q", currency))
	}
	if amount.IsNegative() {
		return Money{}, errors.InvalidAmountError("amount cannot be negative")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ParseMoney creates Money from a decimal string such as "100.00".
// Callers holding floats must stringify them first; binary float arithmetic
// never touches the amount.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.InvalidAmountError(fmt.Sprintf("invalid amount %q", amount))
	}
	return NewMoney(d, currency)
}

// MoneyFromInt creates Money from whole units.
func MoneyFromInt(amount int64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount), currency)
}

// ZeroMoney creates a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	m, _ := NewMoney(decimal.Zero, currency)
	return m
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return errors.CurrencyMismatchError(m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Currencies must match and the result may not be
// negative; balances never go below zero.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.Amount.Sub(other.Amount)
	if result.IsNegative() {
		return Money{}, errors.NegativeResultError("result cannot be negative")
	}
	return Money{Amount: result, Currency: m.Currency}, nil
}

// Mul returns m scaled by k.
func (m Money) Mul(k decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(k), Currency: m.Currency}
}

// Div returns m divided by k.
func (m Money) Div(k decimal.Decimal) Money {
	return Money{Amount: m.Amount.Div(k), Currency: m.Currency}
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if
// equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// LessThan reports m < other for the same currency.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c < 0, err
}

// Equal reports amount and currency equality. Differing currencies compare
// unequal rather than failing.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Quantize rounds to places fractional digits, half away from zero.
func (m Money) Quantize(places int32) Money {
	return Money{Amount: m.Amount.Round(places), Currency: m.Currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}
