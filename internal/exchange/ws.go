package exchange

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crypto_bot/internal/models"
)

const (
	pingEvery      = 20 * time.Second
	reconnectDelay = time.Second
)

// ConnObserver — health-состояние, которое помнит, есть ли живой websocket.
type ConnObserver interface {
	SetWSConnected(v bool)
}

// Feed — ticker-канал Coinbase. Один сокет на все рынки, переподключение до отмены ctx.
type Feed struct {
	url    string
	dialer *websocket.Dialer
	health ConnObserver
	log    *zap.Logger
}

func NewFeed(url string, health ConnObserver, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		health: health,
		log:    log.Named("feed"),
	}
}

type subscribeFrame struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type tickerFrame struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Time      string `json:"time"`
	Message   string `json:"message"`
}

// Subscribe возвращает поток тиков. Канал закрывается после отмены ctx.
func (f *Feed) Subscribe(ctx context.Context, markets []string) (<-chan models.Tick, error) {
	ch := make(chan models.Tick, 64)

	go func() {
		defer close(ch)
		defer f.setConnected(false)

		if len(markets) == 0 {
			return
		}
		for ctx.Err() == nil {
			if err := f.stream(ctx, markets, ch); err != nil && ctx.Err() == nil {
				f.log.Warn("[WS] stream error, reconnecting", zap.Error(err))
			}
			f.setConnected(false)

			select {
			case <-ctx.Done():
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return ch, nil
}

func (f *Feed) setConnected(v bool) {
	if f.health != nil {
		f.health.SetWSConnected(v)
	}
}

// stream — одно соединение: подписка, ping, read-loop.
func (f *Feed) stream(ctx context.Context, markets []string, out chan<- models.Tick) error {
	f.log.Info("[WS] connect", zap.String("url", f.url), zap.Int("markets", len(markets)))
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}

	sub, err := sonic.Marshal(subscribeFrame{Type: "subscribe", ProductIDs: markets, Channels: []string{"ticker"}})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		_ = conn.Close()
		return err
	}
	f.setConnected(true)

	// ReadMessage не смотрит на ctx: закрываем сокет сами
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Debug("[WS] ping failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame tickerFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			f.log.Debug("[WS] bad frame", zap.Error(err))
			continue
		}
		if frame.Type == "error" {
			f.log.Warn("[WS] exchange error", zap.String("message", frame.Message))
			continue
		}
		tick, ok := parseTick(frame)
		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// parseTick — только ticker-кадры с ценой и временем.
func parseTick(frame tickerFrame) (models.Tick, bool) {
	if frame.Type != "ticker" || frame.ProductID == "" {
		return models.Tick{}, false
	}
	price, err := decimal.NewFromString(frame.Price)
	if err != nil || !price.IsPositive() {
		return models.Tick{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, frame.Time)
	if err != nil {
		return models.Tick{}, false
	}
	return models.Tick{Market: frame.ProductID, Price: price, Time: ts.UTC()}, true
}
