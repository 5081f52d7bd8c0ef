// Package control — текстовые команды управления ботом (stdin и телеграм).
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"crypto_bot/internal/monitor"
)

// View — то, что команды читают у работающего бота.
type View interface {
	Portfolios() []string
	Snapshots(portfolio string) []monitor.Snapshot
}

const help = `commands:
  state [market]     состояние мониторов (yaml)
  rsi <market>       последний RSI по рынку
  macd_diff <market> последняя разница MACD и сигнальной
  portfolios         список портфелей
  shutdown           остановить бота
  help               эта справка`

// Handler разбирает строку команды. Безопасен для конкурентных вызовов:
// читает только опубликованные снимки мониторов.
type Handler struct {
	view     View
	shutdown func() error
	log      *zap.Logger
}

func NewHandler(view View, shutdown func() error, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{view: view, shutdown: shutdown, log: log.Named("control")}
}

// entry — снимок монитора с именем портфеля для вывода.
type entry struct {
	Portfolio        string `yaml:"portfolio"`
	monitor.Snapshot `yaml:",inline"`
}

func (h *Handler) Exec(_ context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.TrimPrefix(strings.ToLower(fields[0]), "/"), fields[1:]
	h.log.Info("command", zap.String("cmd", cmd), zap.Strings("args", args))

	switch cmd {
	case "help", "start":
		return help, nil

	case "portfolios":
		names := append([]string(nil), h.view.Portfolios()...)
		sort.Strings(names)
		if len(names) == 0 {
			return "no portfolios", nil
		}
		return strings.Join(names, "\n"), nil

	case "state":
		market := ""
		if len(args) > 0 {
			market = strings.ToUpper(args[0])
		}
		entries := h.entries(market)
		if market != "" && len(entries) == 0 {
			return "", fmt.Errorf("unknown market %q", market)
		}
		out, err := yaml.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("state: %w", err)
		}
		return string(out), nil

	case "rsi", "macd_diff":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: %s <market>", cmd)
		}
		return h.indicator(cmd, strings.ToUpper(args[0]))

	case "shutdown":
		if h.shutdown == nil {
			return "", fmt.Errorf("shutdown is not available")
		}
		if err := h.shutdown(); err != nil {
			return "", fmt.Errorf("shutdown: %w", err)
		}
		return "shutting down", nil
	}
	return "", fmt.Errorf("unknown command %q, try help", cmd)
}

// entries — снимки всех портфелей, по рынку если задан; порядок стабильный.
func (h *Handler) entries(market string) []entry {
	var out []entry
	for _, p := range h.view.Portfolios() {
		for _, s := range h.view.Snapshots(p) {
			if market != "" && s.Market != market {
				continue
			}
			out = append(out, entry{Portfolio: p, Snapshot: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Portfolio != out[j].Portfolio {
			return out[i].Portfolio < out[j].Portfolio
		}
		return out[i].Market < out[j].Market
	})
	return out
}

func (h *Handler) indicator(cmd, market string) (string, error) {
	entries := h.entries(market)
	if len(entries) == 0 {
		return "", fmt.Errorf("unknown market %q", market)
	}

	var b strings.Builder
	for _, e := range entries {
		v := e.RSI
		if cmd == "macd_diff" {
			v = e.MACDDiff
		}
		if v == "" {
			v = "n/a"
		}
		fmt.Fprintf(&b, "%s %s %s: %s\n", e.Portfolio, e.Market, e.Granularity, v)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RunStdin читает команды построчно до EOF или отмены ctx.
func (h *Handler) RunStdin(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			res, err := h.Exec(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if res != "" {
				fmt.Fprintln(out, res)
			}
		}
	}
}
