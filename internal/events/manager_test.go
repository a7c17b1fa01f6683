package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEmittedEvents(t *testing.T) {
	m := NewManager(zerolog.New(nil).Level(zerolog.Disabled))

	sub, cancel := m.Subscribe()
	defer cancel()

	m.Emit(NAVComputed, "analysis", map[string]any{"points": 42})

	event := <-sub
	assert.Equal(t, NAVComputed, event.Type)
	assert.Equal(t, "analysis", event.Module)
	assert.Equal(t, 42, event.Data["points"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestCancelStopsDelivery(t *testing.T) {
	m := NewManager(zerolog.New(nil).Level(zerolog.Disabled))

	sub, cancel := m.Subscribe()
	cancel()

	// Channel is closed; a receive must not block.
	_, open := <-sub
	assert.False(t, open)

	// Emitting after cancel must not panic.
	m.Emit(AnalysisComplete, "analysis", nil)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := NewManager(zerolog.New(nil).Level(zerolog.Disabled))

	sub, cancel := m.Subscribe()
	defer cancel()

	// Overflow the buffer; Emit must never block.
	for i := 0; i < 100; i++ {
		m.Emit(PricesLoaded, "analysis", nil)
	}

	received := 0
	for {
		select {
		case <-sub:
			received++
			continue
		default:
		}
		break
	}
	require.Greater(t, received, 0)
	assert.LessOrEqual(t, received, 32)
}

func TestEmitErrorMergesContext(t *testing.T) {
	m := NewManager(zerolog.New(nil).Level(zerolog.Disabled))

	sub, cancel := m.Subscribe()
	defer cancel()

	m.EmitError("analysis", assert.AnError, map[string]any{"symbol": "AAPL"})

	event := <-sub
	assert.Equal(t, ErrorOccurred, event.Type)
	assert.Equal(t, assert.AnError.Error(), event.Data["error"])
	assert.Equal(t, "AAPL", event.Data["symbol"])
}
