package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleTeam       Role = "team"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleDispatcher, RoleTeam:
		return r, nil
	}
	return "", domain.Validation("role", "unknown role %q", s)
}

const ChannelDispatchers = "dispatchers"

func TeamChannel(c domain.Craft) string { return "team." + string(c) }

// Event is one realtime frame addressed to a channel.
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"event"`
	Channel    string          `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink is the transport end of one session.
type Sink interface {
	Send(ev Event) error
	Close()
}

type Session struct {
	ID          string
	Role        Role
	Craft       domain.Craft
	ConnectedAt time.Time
	sink        Sink
}

func (s *Session) channels() []string {
	if s.Role == RoleTeam {
		return []string{TeamChannel(s.Craft)}
	}
	return []string{ChannelDispatchers}
}

var ErrClosed = errors.New("connection manager closed")

// Manager owns session lifecycle and channel membership for this process.
type Manager struct {
	lg *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	channels map[string]map[string]*Session
	closed   bool
}

func NewManager(lg *logger.Logger) *Manager {
	return &Manager{
		lg:       lg,
		sessions: map[string]*Session{},
		channels: map[string]map[string]*Session{},
	}
}

// Register adds a session. Team sessions must name a craft.
func (m *Manager) Register(role Role, craft domain.Craft, sink Sink) (*Session, error) {
	if role == RoleTeam {
		if !craft.Valid() {
			return nil, domain.Validation("craft", "team sessions need a valid craft, got %q", craft)
		}
	} else {
		craft = ""
	}
	s := &Session{ID: uuid.NewString(), Role: role, Craft: craft, ConnectedAt: time.Now().UTC(), sink: sink}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.sessions[s.ID] = s
	for _, ch := range s.channels() {
		if m.channels[ch] == nil {
			m.channels[ch] = map[string]*Session{}
		}
		m.channels[ch][s.ID] = s
	}
	m.lg.Debug("session_registered", map[string]any{"session_id": s.ID, "role": string(role), "craft": string(craft)})
	return s, nil
}

func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		for _, ch := range s.channels() {
			delete(m.channels[ch], id)
			if len(m.channels[ch]) == 0 {
				delete(m.channels, ch)
			}
		}
	}
	m.mu.Unlock()
	if ok {
		s.sink.Close()
		m.lg.Debug("session_unregistered", map[string]any{"session_id": id})
	}
}

// Deliver hands ev to every session on its channel and returns how many accepted it.
// Nobody listening is not an error.
func (m *Manager) Deliver(ev Event) int {
	m.mu.RLock()
	members := make([]*Session, 0, len(m.channels[ev.Channel]))
	for _, s := range m.channels[ev.Channel] {
		members = append(members, s)
	}
	m.mu.RUnlock()

	n := 0
	for _, s := range members {
		if err := s.sink.Send(ev); err != nil {
			m.lg.Warn("realtime_send_failed", err, map[string]any{
				"session_id": s.ID, "channel": ev.Channel, "event": ev.Name,
			})
			continue
		}
		n++
	}
	return n
}

func (m *Manager) Members(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channel])
}

// Close disconnects every session and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.channels = map[string]map[string]*Session{}
	m.closed = true
	m.mu.Unlock()
	for _, s := range sessions {
		s.sink.Close()
	}
}

// ChanSink buffers events for a streaming transport. A full buffer drops the event.
type ChanSink struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

var ErrSlowConsumer = errors.New("session buffer full, event dropped")

func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanSink{events: make(chan Event, buffer), done: make(chan struct{})}
}

func (c *ChanSink) Send(ev Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *ChanSink) Close() { c.once.Do(func() { close(c.done) }) }

func (c *ChanSink) Events() <-chan Event { return c.events }

func (c *ChanSink) Done() <-chan struct{} { return c.done }
