// Package events is a small in-process pub/sub used to surface analysis
// progress to streaming endpoints.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType labels the analysis pipeline stages.
type EventType string

const (
	AnalysisStarted    EventType = "ANALYSIS_STARTED"
	SymbolsResolved    EventType = "SYMBOLS_RESOLVED"
	StaleTickersFound  EventType = "STALE_TICKERS_FOUND"
	PricesLoaded       EventType = "PRICES_LOADED"
	NAVComputed        EventType = "NAV_COMPUTED"
	IndicatorsComputed EventType = "INDICATORS_COMPUTED"
	AnalysisComplete   EventType = "ANALYSIS_COMPLETE"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)

// Event is one progress notification.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Module    string         `json:"module"`
	Data      map[string]any `json:"data,omitempty"`
}

// Manager fans events out to subscribers. Slow subscribers drop events
// rather than block the emitter.
type Manager struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewManager creates an event manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:  log.With().Str("component", "events").Logger(),
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a buffered event channel. The returned cancel func
// unregisters and closes it.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	ch := make(chan Event, 32)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit publishes an event to all subscribers.
func (m *Manager) Emit(eventType EventType, module string, data map[string]any) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Event emitted")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// EmitError publishes an error event.
func (m *Manager) EmitError(module string, err error, context map[string]any) {
	data := map[string]any{"error": err.Error()}
	for k, v := range context {
		data[k] = v
	}
	m.Emit(ErrorOccurred, module, data)
}
