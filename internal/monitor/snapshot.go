package monitor

import (
	"time"
)

// Snapshot — неизменяемый срез состояния монитора для команд управления.
type Snapshot struct {
	Market      string    `yaml:"market"`
	Granularity string    `yaml:"granularity"`
	State       string    `yaml:"state"`
	Owned       string    `yaml:"owned"`
	LastSync    time.Time `yaml:"last_sync"`
	Rows        int       `yaml:"rows"`
	Close       string    `yaml:"close,omitempty"`
	RSI         string    `yaml:"rsi,omitempty"`
	MACDDiff    string    `yaml:"macd_diff,omitempty"`
	Skipped     bool      `yaml:"trend_skipped"`
	Pattern     string    `yaml:"last_pattern,omitempty"`
	PatternAt   string    `yaml:"last_pattern_at,omitempty"`
}

// Snapshot безопасен из любой горутины.
func (m *Monitor) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

func (m *Monitor) publish() {
	s := &Snapshot{
		Market:      m.cfg.Market,
		Granularity: m.cfg.Granularity.String(),
		State:       m.state.String(),
		Owned:       m.owned.String(),
		LastSync:    m.lastSync,
		Rows:        len(m.table),
		Skipped:     m.skipped,
		Pattern:     string(m.pattern),
	}
	if m.pattern != "" {
		s.PatternAt = m.candle.Start.Format(time.RFC3339)
	}
	if last, ok := m.table.Last(); ok {
		s.Close = last.Close.String()
		s.RSI = last.RSI.StringFixed(2)
		s.MACDDiff = last.MACDDiff().StringFixed(6)
	}
	m.snapshot.Store(s)
}
