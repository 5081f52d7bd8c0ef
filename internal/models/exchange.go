package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Balance — счёт в одной валюте.
type Balance struct {
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
}

// OrderRequest — рыночный ордер: для buy задаются Funds, для sell — Size.
type OrderRequest struct {
	ClientOID string
	Market    string
	Side      Side
	Size      decimal.Decimal
	Funds     decimal.Decimal
}

// OrderResult — ответ биржи по ордеру.
type OrderResult struct {
	ID         string          `json:"id"`
	Market     string          `json:"product_id"`
	Side       Side            `json:"side"`
	Status     string          `json:"status"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Funds      decimal.Decimal `json:"funds"`
}

// BaseCurrency: "BTC-USD" -> "BTC".
func BaseCurrency(market string) string {
	if i := strings.IndexByte(market, '-'); i > 0 {
		return market[:i]
	}
	return market
}
