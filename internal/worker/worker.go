package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"crypto_bot/internal/models"
)

const defaultSleep = time.Second

// Handler обрабатывает одно сообщение. Паника внутри не роняет цикл.
type Handler func(ctx context.Context, msg models.Message)

// Options — параметры poll-sleep цикла.
type Options struct {
	// Sleep — пауза между итерациями (верхняя граница задержки реакции).
	Sleep time.Duration
	// Act — проактивное действие, не чаще раза в ActEvery.
	Act      func(ctx context.Context)
	ActEvery time.Duration
}

// Worker — актор: своя очередь (или очереди) и свой цикл.
// Состояние наследника трогает только горутина Run.
type Worker struct {
	id  string
	log *zap.Logger

	queues   []*Queue // по убыванию приоритета, последняя — обычная
	wake     chan struct{}
	shutdown atomic.Bool
}

func New(id string, log *zap.Logger) *Worker {
	return newWorker(id, log, 1)
}

func newWorker(id string, log *zap.Logger, lanes int) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		id:     id,
		log:    log,
		queues: make([]*Queue, lanes),
		wake:   make(chan struct{}, 1),
	}
	for i := range w.queues {
		w.queues[i] = &Queue{}
	}
	return w
}

func (w *Worker) ID() string          { return w.id }
func (w *Worker) Logger() *zap.Logger { return w.log }

// Enqueue кладёт сообщение в обычную очередь и сразу возвращает управление.
func (w *Worker) Enqueue(msg models.Message) {
	w.queues[len(w.queues)-1].Push(msg)
	w.log.Debug("enqueued", zap.Stringer("msg", msg))
	w.signal()
}

// Dequeue берёт самое старое сообщение из самой приоритетной непустой очереди.
func (w *Worker) Dequeue() (models.Message, bool) {
	for _, q := range w.queues {
		if msg, ok := q.Pop(); ok {
			return msg, true
		}
	}
	return models.Message{}, false
}

// Pending — сколько сообщений ждут во всех очередях.
func (w *Worker) Pending() int {
	n := 0
	for _, q := range w.queues {
		n += q.Len()
	}
	return n
}

// RequestShutdown — кооперативная остановка: цикл увидит флаг между итерациями.
func (w *Worker) RequestShutdown() {
	w.shutdown.Store(true)
	w.signal()
}

func (w *Worker) IsShutdown() bool { return w.shutdown.Load() }

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Drain обрабатывает очередь до пустой. Shutdown-сообщение поднимает флаг и прерывает разбор.
// Возвращает число обработанных сообщений.
func (w *Worker) Drain(ctx context.Context, handle Handler) int {
	n := 0
	for {
		msg, ok := w.Dequeue()
		if !ok {
			return n
		}
		n++
		if msg.Kind() == models.KindShutdown {
			w.log.Info("shutdown message received", zap.String("from", msg.SenderID()))
			w.shutdown.Store(true)
			return n
		}
		w.safeHandle(ctx, handle, msg)
	}
}

func (w *Worker) safeHandle(ctx context.Context, handle Handler, msg models.Message) {
	defer func() {
		if p := recover(); p != nil {
			w.log.Error("message handler panicked, message dropped",
				zap.Stringer("msg", msg),
				zap.Any("panic", p),
			)
		}
	}()
	handle(ctx, msg)
}

func (w *Worker) safeAct(ctx context.Context, act func(context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			w.log.Error("proactive action panicked", zap.Any("panic", p))
		}
	}()
	act(ctx)
}

func (w *Worker) stopped(ctx context.Context) bool {
	return w.IsShutdown() || ctx.Err() != nil
}

// Run — цикл актора: разобрать очередь, при необходимости выполнить Act, поспать.
// Выходит после текущей итерации, когда поднят флаг или отменён ctx.
func (w *Worker) Run(ctx context.Context, opts Options, handle Handler) {
	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = defaultSleep
	}

	w.log.Info("starting")
	defer w.log.Info("terminating")

	timer := time.NewTimer(sleep)
	defer timer.Stop()

	var lastAct time.Time
	for !w.stopped(ctx) {
		w.Drain(ctx, handle)
		if w.stopped(ctx) {
			return
		}

		if opts.Act != nil && (lastAct.IsZero() || time.Since(lastAct) >= opts.ActEvery) {
			lastAct = time.Now()
			w.safeAct(ctx, opts.Act)
		}

		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-timer.C:
		}
	}
}

// PriorityWorker — актор со второй очередью, которая разбирается раньше обычной.
type PriorityWorker struct {
	*Worker
}

func NewPriority(id string, log *zap.Logger) *PriorityWorker {
	return &PriorityWorker{Worker: newWorker(id, log, 2)}
}

// EnqueuePriority кладёт сообщение в приоритетную очередь.
func (w *PriorityWorker) EnqueuePriority(msg models.Message) {
	w.queues[0].Push(msg)
	w.log.Debug("enqueued priority", zap.Stringer("msg", msg))
	w.signal()
}
