package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crypto_bot/internal/metrics"
	"crypto_bot/internal/models"
	"crypto_bot/internal/worker"
	"crypto_bot/pkg/tracing"
)

// OrderClient — приватный REST биржи (ключи одного портфеля).
type OrderClient interface {
	GetAccounts(ctx context.Context) ([]models.Balance, error)
	PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

// Notifier — куда сообщать об ордерах.
type Notifier interface {
	Sendf(format string, args ...any)
}

type nopNotifier struct{}

func (nopNotifier) Sendf(string, ...any) {}

// AuthenticatedID — id гейтвея портфеля.
func AuthenticatedID(portfolio string) string { return "gateway:auth:" + portfolio }

// Authenticated — приоритетный актор ордеров. Ордера и баланс идут через EnqueuePriority.
// Ошибка биржи логируется и уходит в нотификацию; состояние монитора не откатывается.
type Authenticated struct {
	*worker.PriorityWorker

	client   OrderClient
	notifier Notifier
	sleep    time.Duration
	newOID   func() string
}

func NewAuthenticated(portfolio string, client OrderClient, notifier Notifier, sleep time.Duration, log *zap.Logger) *Authenticated {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Authenticated{
		PriorityWorker: worker.NewPriority(AuthenticatedID(portfolio), log.Named("auth").With(zap.String("portfolio", portfolio))),
		client:         client,
		notifier:       notifier,
		sleep:          sleep,
		newOID:         uuid.NewString,
	}
}

func (a *Authenticated) Run(ctx context.Context) {
	a.Worker.Run(ctx, worker.Options{Sleep: a.sleep}, a.handle)
}

func (a *Authenticated) handle(ctx context.Context, msg models.Message) {
	switch p := msg.Payload().(type) {
	case models.AccountBalanceRequest:
		a.balances(ctx, msg)
	case models.BuyOrderRequest:
		order, ok := a.place(ctx, models.OrderRequest{Market: p.Market, Side: models.SideBuy, Funds: p.Funds})
		if ok {
			a.reply(msg, models.BuyOrderResponse{Order: order})
		}
	case models.SellOrderRequest:
		order, ok := a.place(ctx, models.OrderRequest{Market: p.Market, Side: models.SideSell, Size: p.Size})
		if ok {
			a.reply(msg, models.SellOrderResponse{Order: order})
		}
	default:
		a.Logger().Warn("unexpected message dropped", zap.Stringer("msg", msg))
		metrics.DroppedMessages.WithLabelValues("auth", msg.Kind().String()).Inc()
	}
}

func (a *Authenticated) reply(msg models.Message, p models.Payload) {
	to := msg.Sender()
	if to == nil {
		return
	}
	to.Enqueue(models.NewMessage(a, to.ID(), p))
}

func (a *Authenticated) balances(ctx context.Context, msg models.Message) {
	span, ctx := tracing.StartSpan(ctx, "gateway.GetAccounts", nil)
	defer span.Finish()

	balances, err := a.client.GetAccounts(ctx)
	if err != nil {
		tracing.Fail(span, err)
		a.Logger().Error("account balance request failed", zap.Error(err))
		return
	}
	a.reply(msg, models.AccountBalanceResponse{Balances: balances})
}

func (a *Authenticated) place(ctx context.Context, req models.OrderRequest) (models.OrderResult, bool) {
	if !validAmount(req) {
		a.Logger().Warn("order with non-positive amount rejected",
			zap.String("market", req.Market), zap.String("side", string(req.Side)))
		metrics.OrdersTotal.WithLabelValues(req.Market, string(req.Side), "rejected").Inc()
		return models.OrderResult{}, false
	}
	req.ClientOID = a.newOID()

	span, ctx := tracing.StartSpan(ctx, "gateway.PlaceMarketOrder", opentracing.Tags{
		"market":     req.Market,
		"side":       string(req.Side),
		"client_oid": req.ClientOID,
	})
	defer span.Finish()

	amount := describe(req)
	order, err := a.client.PlaceMarketOrder(ctx, req)
	if err != nil {
		tracing.Fail(span, err)
		a.Logger().Error("order placement failed",
			append(tracing.Fields(span),
				zap.String("market", req.Market),
				zap.String("side", string(req.Side)),
				zap.String("amount", amount),
				zap.Error(err),
			)...,
		)
		metrics.OrdersTotal.WithLabelValues(req.Market, string(req.Side), "failed").Inc()
		a.notifier.Sendf("❗️ %s %s %s: ошибка: %v", req.Side, req.Market, amount, err)
		return models.OrderResult{}, false
	}

	a.Logger().Info("order placed",
		zap.String("market", req.Market),
		zap.String("side", string(req.Side)),
		zap.String("amount", amount),
		zap.String("order", order.ID),
		zap.String("status", order.Status),
	)
	metrics.OrdersTotal.WithLabelValues(req.Market, string(req.Side), "ok").Inc()
	a.notifier.Sendf("✅ %s %s %s (order %s, filled %s)", req.Side, req.Market, amount, order.ID, order.FilledSize)
	return order, true
}

func describe(req models.OrderRequest) string {
	if req.Side == models.SideBuy {
		return fmt.Sprintf("funds=%s", req.Funds)
	}
	return fmt.Sprintf("size=%s", req.Size)
}

// validAmount: buy — положительные funds, sell — положительный size.
func validAmount(req models.OrderRequest) bool {
	amount := req.Size
	if req.Side == models.SideBuy {
		amount = req.Funds
	}
	return amount.GreaterThan(decimal.Zero)
}
