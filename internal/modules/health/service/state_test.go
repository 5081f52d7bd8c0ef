package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	s := NewState()
	assert.False(t, s.Ready())
	assert.True(t, s.LastTick().IsZero())

	s.SetReady(true)
	s.SetWSConnected(true)
	s.TouchTick(time.Unix(42, 0))

	assert.True(t, s.Ready())
	assert.True(t, s.WSConnected())
	assert.Equal(t, time.Unix(42, 0), s.LastTick())
	assert.GreaterOrEqual(t, s.Uptime(), time.Duration(0))
}

func TestTouchTickKeepsNewest(t *testing.T) {
	s := NewState()
	s.TouchTick(time.Unix(100, 0))
	s.TouchTick(time.Unix(50, 0))
	assert.Equal(t, time.Unix(100, 0), s.LastTick())
}
