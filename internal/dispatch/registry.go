package dispatch

import (
	"sync"
	"time"
)

type connection struct {
	agentID     string
	connectedAt time.Time
	lastSeen    time.Time
	ch          chan *Message
}

// Registry holds one buffered channel per listening agent. Delivery is at
// most once: messages for an agent nobody listens for are not kept.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*connection // keyed by agentID
	bufSize int
}

func NewRegistry(bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Registry{
		conns:   make(map[string]*connection),
		bufSize: bufSize,
	}
}

// Connect registers a listener for agentID, replacing (and closing) any
// previous one. The returned func releases the registration; it is a no-op
// once a newer listener has taken over.
func (r *Registry) Connect(agentID string) (<-chan *Message, func()) {
	now := time.Now()
	conn := &connection{
		agentID:     agentID,
		connectedAt: now,
		lastSeen:    now,
		ch:          make(chan *Message, r.bufSize),
	}
	r.mu.Lock()
	if old, ok := r.conns[agentID]; ok {
		close(old.ch)
	}
	r.conns[agentID] = conn
	r.mu.Unlock()

	var once sync.Once
	return conn.ch, func() {
		once.Do(func() {
			r.mu.Lock()
			if cur, ok := r.conns[agentID]; ok && cur == conn {
				close(conn.ch)
				delete(r.conns, agentID)
			}
			r.mu.Unlock()
		})
	}
}

// Send queues msg for agentID without blocking. It returns false when the
// agent is not listening or its buffer is full.
func (r *Registry) Send(agentID string, msg *Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[agentID]
	if !ok {
		return false
	}
	select {
	case conn.ch <- msg:
		return true
	default:
		return false
	}
}

func (r *Registry) Connected(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[agentID]
	return ok
}

// Touch records a heartbeat. It returns false when the agent is not
// listening.
func (r *Registry) Touch(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[agentID]
	if !ok {
		return false
	}
	conn.lastSeen = time.Now()
	return true
}

func (r *Registry) LastSeen(agentID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[agentID]
	if !ok {
		return time.Time{}, false
	}
	return conn.lastSeen, true
}
