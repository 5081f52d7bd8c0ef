// Package recorder докачивает историю свечей рынка в хранилище.
package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crypto_bot/internal/models"
	"crypto_bot/internal/store"
	"crypto_bot/internal/worker"
)

const (
	// столько строк биржа отдаёт за один запрос
	maxRows = 300
	// повтор запроса, если ответ так и не пришёл
	retryAfter = 30 * time.Second
)

type Config struct {
	Market        string
	Granularities []time.Duration
	LagFactor     int
	Sleep         time.Duration
}

func ID(market string) string { return "recorder:" + market }

// Recorder — актор одного рынка; last и requested трогает только Run.
type Recorder struct {
	*worker.Worker

	cfg    Config
	public models.Mailbox
	store  store.CandleStore
	now    func() time.Time

	last      map[time.Duration]time.Time
	requested map[time.Duration]time.Time
}

func New(cfg Config, public models.Mailbox, st store.CandleStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.LagFactor <= 0 {
		cfg.LagFactor = 5
	}
	return &Recorder{
		Worker:    worker.New(ID(cfg.Market), log.Named("recorder").With(zap.String("market", cfg.Market))),
		cfg:       cfg,
		public:    public,
		store:     st,
		now:       time.Now,
		last:      make(map[time.Duration]time.Time),
		requested: make(map[time.Duration]time.Time),
	}
}

// Run поднимает последние сохранённые времена и крутит цикл.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.restore(ctx); err != nil {
		return err
	}
	r.Worker.Run(ctx, worker.Options{
		Sleep:    r.cfg.Sleep,
		Act:      r.poll,
		ActEvery: r.cfg.Sleep,
	}, r.handle)
	return nil
}

func (r *Recorder) restore(ctx context.Context) error {
	for _, g := range r.cfg.Granularities {
		newest, ok, err := r.store.Newest(ctx, r.cfg.Market, g)
		if err != nil {
			return err
		}
		if ok {
			r.last[g] = newest
		}
	}
	return nil
}

// poll просит историю по каждой отставшей гранулярности.
func (r *Recorder) poll(context.Context) {
	now := r.now()
	for _, g := range r.cfg.Granularities {
		last := r.last[g]
		if !last.IsZero() && !now.After(last.Add(g*time.Duration(r.cfg.LagFactor))) {
			continue
		}
		if at, ok := r.requested[g]; ok && now.Sub(at) < retryAfter {
			continue
		}
		r.requested[g] = now

		req := models.HistoricalDataRequest{Market: r.cfg.Market, Granularity: g}
		if !last.IsZero() {
			req.Start = last
			req.End = last.Add(g * maxRows)
		}
		r.Logger().Debug("requesting history", zap.Duration("granularity", g), zap.Time("from", last))
		r.public.Enqueue(models.NewMessage(r, r.public.ID(), req))
	}
}

func (r *Recorder) handle(ctx context.Context, msg models.Message) {
	resp, ok := msg.Payload().(models.HistoricalDataResponse)
	if !ok || resp.Market != r.cfg.Market {
		r.Logger().Warn("unexpected message dropped", zap.Stringer("msg", msg))
		return
	}
	delete(r.requested, resp.Granularity)
	if len(resp.Rows) == 0 {
		return
	}

	n, err := r.store.Append(ctx, r.cfg.Market, resp.Granularity, resp.Rows)
	if err != nil {
		r.Logger().Error("append history failed", zap.Duration("granularity", resp.Granularity), zap.Error(err))
		return
	}
	if newest := resp.Rows[len(resp.Rows)-1].Time; newest.After(r.last[resp.Granularity]) {
		r.last[resp.Granularity] = newest
	}
	r.Logger().Debug("history recorded",
		zap.Duration("granularity", resp.Granularity),
		zap.Int("new_rows", n),
		zap.Time("last", r.last[resp.Granularity]),
	)
}
