package service

import (
	"sync/atomic"
	"time"
)

// State — флаги для /readyz и /healthz. Пишут акторы, читает HTTP.
type State struct {
	startedAt time.Time

	ready       atomic.Bool
	wsConnected atomic.Bool
	lastTick    atomic.Int64 // unix nano, 0 — тиков ещё не было
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

// TouchTick запоминает время тика; более старые тики не откатывают значение.
func (s *State) TouchTick(t time.Time) {
	n := t.UnixNano()
	for {
		cur := s.lastTick.Load()
		if n <= cur || s.lastTick.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *State) LastTick() time.Time {
	n := s.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
