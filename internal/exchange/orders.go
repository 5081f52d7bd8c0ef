package exchange

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"crypto_bot/internal/models"
)

// GetAccounts — GET /accounts.
func (c *Client) GetAccounts(ctx context.Context) ([]models.Balance, error) {
	var out []models.Balance
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &out, true); err != nil {
		return nil, errors.Wrap(err, "get accounts")
	}
	return out, nil
}

type marketOrder struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	ProductID string `json:"product_id"`
	Funds     string `json:"funds,omitempty"`
	Size      string `json:"size,omitempty"`
	ClientOID string `json:"client_oid,omitempty"`
}

// PlaceMarketOrder — POST /orders. Buy задаётся суммой (funds), sell — размером (size).
func (c *Client) PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	body := marketOrder{
		Type:      "market",
		Side:      string(req.Side),
		ProductID: req.Market,
		ClientOID: req.ClientOID,
	}
	switch req.Side {
	case models.SideBuy:
		body.Funds = req.Funds.String()
	case models.SideSell:
		body.Size = req.Size.String()
	default:
		return models.OrderResult{}, errors.Errorf("unsupported side %q", req.Side)
	}

	var out models.OrderResult
	if err := c.do(ctx, http.MethodPost, "/orders", body, &out, true); err != nil {
		return models.OrderResult{}, errors.Wrapf(err, "place %s %s", req.Side, req.Market)
	}
	return out, nil
}
