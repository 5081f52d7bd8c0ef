// Package gateway — акторы, через которые идут все вызовы биржи.
package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"crypto_bot/internal/metrics"
	"crypto_bot/internal/models"
	"crypto_bot/internal/worker"
	"crypto_bot/pkg/tracing"
)

const PublicID = "gateway:public"

// HistoryClient — публичный REST биржи.
type HistoryClient interface {
	GetHistoricRates(ctx context.Context, market string, start, end time.Time, granularity time.Duration) ([]models.Rate, error)
}

type requestKey struct {
	market      string
	granularity time.Duration
	start, end  time.Time
}

func keyOf(r models.HistoricalDataRequest) requestKey {
	return requestKey{
		market:      r.Market,
		granularity: r.Granularity,
		start:       r.Start.UTC(),
		end:         r.End.UTC(),
	}
}

// Public — реле исторических данных. Одинаковый запрос, пока первый не отвечен,
// не уходит на биржу повторно: отправитель дописывается в список ожидающих.
type Public struct {
	*worker.Worker

	client  HistoryClient
	sleep   time.Duration
	spacing time.Duration
	now     func() time.Time

	mu      sync.Mutex
	pending map[requestKey][]models.Mailbox

	lastCall time.Time // только горутина Run
}

// NewPublic; spacing — минимальная пауза между вызовами биржи (0 — без паузы).
func NewPublic(client HistoryClient, sleep, spacing time.Duration, log *zap.Logger) *Public {
	if log == nil {
		log = zap.NewNop()
	}
	return &Public{
		Worker:  worker.New(PublicID, log.Named("public")),
		client:  client,
		sleep:   sleep,
		spacing: spacing,
		now:     time.Now,
		pending: make(map[requestKey][]models.Mailbox),
	}
}

// Enqueue сливает повторный запрос истории с уже ожидающим.
func (p *Public) Enqueue(msg models.Message) {
	req, ok := msg.Payload().(models.HistoricalDataRequest)
	if !ok {
		p.Worker.Enqueue(msg)
		return
	}

	key := keyOf(req)
	p.mu.Lock()
	waiters, inFlight := p.pending[key]
	p.pending[key] = append(waiters, msg.Sender())
	p.mu.Unlock()

	if inFlight {
		p.Logger().Debug("duplicate history request merged",
			zap.String("market", req.Market),
			zap.Duration("granularity", req.Granularity),
			zap.String("from", msg.SenderID()),
		)
		metrics.HistoryRequests.WithLabelValues(req.Market, "merged").Inc()
		return
	}
	p.Worker.Enqueue(msg)
}

// PendingRequests — сколько разных запросов ждут ответа.
func (p *Public) PendingRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Public) Run(ctx context.Context) {
	p.Worker.Run(ctx, worker.Options{Sleep: p.sleep}, p.handle)
}

func (p *Public) handle(ctx context.Context, msg models.Message) {
	req, ok := msg.Payload().(models.HistoricalDataRequest)
	if !ok {
		p.Logger().Warn("unexpected message dropped", zap.Stringer("msg", msg))
		metrics.DroppedMessages.WithLabelValues("public", msg.Kind().String()).Inc()
		return
	}

	rows, err := p.fetch(ctx, req)
	waiters := p.release(keyOf(req))
	if err != nil {
		p.Logger().Error("history request failed",
			zap.String("market", req.Market),
			zap.Duration("granularity", req.Granularity),
			zap.Error(err),
		)
		metrics.HistoryRequests.WithLabelValues(req.Market, "failed").Inc()
		return
	}
	metrics.HistoryRequests.WithLabelValues(req.Market, "ok").Inc()

	resp := models.HistoricalDataResponse{
		Market:      req.Market,
		Granularity: req.Granularity,
		Rows:        rows,
		ReceivedAt:  p.now(),
	}
	for _, w := range waiters {
		if w == nil {
			continue
		}
		w.Enqueue(models.NewMessage(p, w.ID(), resp))
	}
}

func (p *Public) fetch(ctx context.Context, req models.HistoricalDataRequest) ([]models.Rate, error) {
	if wait := p.spacing - p.now().Sub(p.lastCall); p.spacing > 0 && wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	p.lastCall = p.now()

	span, ctx := tracing.StartSpan(ctx, "gateway.GetHistoricRates", opentracing.Tags{
		"market":      req.Market,
		"granularity": req.Granularity.String(),
	})
	defer span.Finish()

	rows, err := p.client.GetHistoricRates(ctx, req.Market, req.Start, req.End, req.Granularity)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetTag("rows", len(rows))

	sorted := make([]models.Rate, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return sorted, nil
}

// release снимает запрос из ожидающих и отдаёт всех, кто его ждал.
func (p *Public) release(key requestKey) []models.Mailbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiters := p.pending[key]
	delete(p.pending, key)
	return waiters
}
