package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency.String()
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON writes the amount with two decimals, currency.Unit has no JSON form of its own.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount.StringFixed(2), Currency: m.Currency.String()})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("amount[%s] is not valid: %w", v.Amount, err)
	}

	unit, err := currency.ParseISO(v.Currency)
	if err != nil {
		return fmt.Errorf("currency[%s] is not valid: %w", v.Currency, err)
	}

	m.Amount = amount
	m.Currency = unit

	return nil
}
