// Package transport serves the MicroProto protocol to connected clients.
//
// A Hub owns the sessions of one property system. Each connection is
// attached as a Session and fed packets with Session.Handle; the hub answers
// the handshake, synchronises schema and values, applies remote writes and
// broadcasts local changes. Property values are only touched inside
// System.Exec. Broadcasts are collected by a flush listener and sent by
// Broadcast, which Run calls no more often than the broadcast interval.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/microproto/internal/core/metrics"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/protocol"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/types"
)

const (
	DefaultMaxClients        = 8
	DefaultBroadcastInterval = 67 * time.Millisecond
)

// ErrTooManyClients is returned by Attach when the hub is full.
var ErrTooManyClients = errors.New("too many clients")

// Conn is the packet-oriented link to one client. Send must be safe to call
// from one goroutine at a time; the session serialises calls.
type Conn interface {
	Send(ctx context.Context, packet []byte) error
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger (default: disabled).
func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

// WithMetrics records frames, clients and rejections.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Hub) { h.metrics = m } }

// WithMaxClients bounds concurrent sessions.
func WithMaxClients(n int) Option { return func(h *Hub) { h.maxClients = n } }

// WithMaxPacket bounds the packets the hub sends. Clients may lower it in
// their Hello.
func WithMaxPacket(n int) Option { return func(h *Hub) { h.maxPacket = n } }

// WithBroadcastInterval sets the minimum spacing of broadcasts.
func WithBroadcastInterval(d time.Duration) Option { return func(h *Hub) { h.interval = d } }

// WithClock replaces time.Now for handshake timestamps.
func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

// Hub serves the properties of one system to many sessions.
type Hub struct {
	sys        *system.System
	log        zerolog.Logger
	metrics    *metrics.Metrics
	maxClients int
	maxPacket  int
	interval   time.Duration
	now        func() time.Time
	started    time.Time

	// origin is only touched inside System.Exec.
	origin map[types.PropertyID]types.ConnID

	mu       sync.Mutex
	sessions map[types.ConnID]*Session
	pending  []pendingUpdate
	index    map[types.PropertyID]int
}

type pendingUpdate struct {
	update protocol.Update
	origin types.ConnID
}

// NewHub returns a hub serving sys and registers its flush listener.
func NewHub(sys *system.System, opts ...Option) *Hub {
	h := &Hub{
		sys:        sys,
		log:        zerolog.Nop(),
		maxClients: DefaultMaxClients,
		maxPacket:  types.DefaultMaxPacket,
		interval:   DefaultBroadcastInterval,
		now:        time.Now,
		origin:     make(map[types.PropertyID]types.ConnID),
		sessions:   make(map[types.ConnID]*Session),
		index:      make(map[types.PropertyID]int),
	}
	for _, o := range opts {
		o(h)
	}
	h.started = h.now()
	sys.AddFlushListener(h.collect)
	return h
}

// System returns the system served by the hub.
func (h *Hub) System() *system.System { return h.sys }

// Attach registers a new session on conn. The session is not ready until
// the client completes the handshake.
func (h *Hub) Attach(conn Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) >= h.maxClients {
		return nil, fmt.Errorf("%w: %d connected", ErrTooManyClients, len(h.sessions))
	}
	s := newSession(h, conn)
	h.sessions[s.id] = s
	h.metrics.ClientConnected()
	h.log.Info().Str("conn", string(s.id)).Msg("client attached")
	return s, nil
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	h.metrics.ClientDisconnected()
	h.log.Info().Str("conn", string(s.id)).Msg("client detached")
}

// Sessions returns the number of attached sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// collect is the system flush listener. It snapshots the changed values; a
// property changed twice before a broadcast is sent once with its latest
// value.
func (h *Hub) collect(changed []property.Property) {
	updates := make([]pendingUpdate, 0, len(changed))
	for _, p := range changed {
		origin := h.origin[p.ID()]
		delete(h.origin, p.ID())
		if p.Flags().Has(property.FlagHidden) {
			continue
		}
		u, err := protocol.UpdateFor(p)
		if err != nil {
			h.log.Error().Err(err).Str("property", p.Name()).Msg("encode for broadcast")
			continue
		}
		updates = append(updates, pendingUpdate{update: u, origin: origin})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, u := range updates {
		if i, ok := h.index[u.update.ID]; ok {
			if h.pending[i].origin != u.origin {
				u.origin = ""
			}
			h.pending[i] = u
			continue
		}
		h.index[u.update.ID] = len(h.pending)
		h.pending = append(h.pending, u)
	}
}

// Broadcast sends the collected updates to every ready session. A session
// does not receive the updates it wrote itself.
func (h *Hub) Broadcast(ctx context.Context) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	clear(h.index)
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	for _, s := range sessions {
		if !s.Ready() {
			continue
		}
		items := make([]protocol.Update, 0, len(pending))
		for _, p := range pending {
			if p.origin != s.id {
				items = append(items, p.update)
			}
		}
		if len(items) == 0 {
			continue
		}
		if err := s.sendUpdates(ctx, items); err != nil {
			h.log.Warn().Err(err).Str("conn", string(s.id)).Msg("broadcast failed")
		}
	}
}

// Run broadcasts every broadcast interval until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Broadcast(ctx)
		}
	}
}

func (h *Hub) timestamp() uint32 {
	return uint32(h.now().Sub(h.started) / time.Millisecond)
}
