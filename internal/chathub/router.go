package chathub

import (
	"encoding/json"
	"sync"

	"codecollab/backend/internal/models"

	"go.uber.org/zap"
)

// Router fans frames out to attached clients: per room, globally, or to a
// single connection. Delivery is a non-blocking enqueue; a client whose
// buffer is full misses the frame.
type Router struct {
	mu        sync.RWMutex
	clients   map[string]Client
	rooms     map[string]map[string]struct{}
	connRooms map[string]map[string]struct{}
	logger    *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		clients:   make(map[string]Client),
		rooms:     make(map[string]map[string]struct{}),
		connRooms: make(map[string]map[string]struct{}),
		logger:    logger,
	}
}

// Attach makes a client addressable. Attaching an id twice replaces and
// closes the previous client.
func (r *Router) Attach(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.GetConnectionID()
	if old, ok := r.clients[id]; ok && old != c {
		old.Close()
	}
	r.clients[id] = c
}

// Detach removes the connection from every room and closes its client.
// It reports whether the connection was attached.
func (r *Router) Detach(conn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[conn]
	if !ok {
		return false
	}
	delete(r.clients, conn)
	for room := range r.connRooms[conn] {
		r.removeFromRoom(room, conn)
	}
	delete(r.connRooms, conn)
	c.Close()
	return true
}

// CloseAll detaches every client.
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
	r.rooms = make(map[string]map[string]struct{})
	r.connRooms = make(map[string]map[string]struct{})
}

func (r *Router) Subscribe(room, conn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.rooms[room]
	if !ok {
		subs = make(map[string]struct{})
		r.rooms[room] = subs
	}
	subs[conn] = struct{}{}

	joined, ok := r.connRooms[conn]
	if !ok {
		joined = make(map[string]struct{})
		r.connRooms[conn] = joined
	}
	joined[room] = struct{}{}
}

func (r *Router) Unsubscribe(room, conn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromRoom(room, conn)
	if joined, ok := r.connRooms[conn]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.connRooms, conn)
		}
	}
}

// removeFromRoom expects r.mu to be held.
func (r *Router) removeFromRoom(room, conn string) {
	subs, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(subs, conn)
	if len(subs) == 0 {
		delete(r.rooms, room)
	}
}

// ToRoom delivers to every subscriber of room except exclude. An empty
// exclude includes the sender.
func (r *Router) ToRoom(room, event string, payload any, exclude string) {
	frame, ok := r.encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for conn := range r.rooms[room] {
		if conn == exclude {
			continue
		}
		if c, ok := r.clients[conn]; ok {
			r.enqueue(c, event, frame)
		}
	}
}

func (r *Router) ToAll(event string, payload any) {
	r.ToAllExcept("", event, payload)
}

func (r *Router) ToAllExcept(exclude, event string, payload any) {
	frame, ok := r.encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for conn, c := range r.clients {
		if conn != exclude {
			r.enqueue(c, event, frame)
		}
	}
}

// ToConnection reports false when the connection is not attached or the
// frame could not be queued.
func (r *Router) ToConnection(conn, event string, payload any) bool {
	frame, ok := r.encode(event, payload)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[conn]
	if !ok {
		return false
	}
	return r.enqueue(c, event, frame)
}

func (r *Router) IsConnected(conn string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[conn]
	return ok
}

func (r *Router) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Subscribers returns how many connections are subscribed to room.
func (r *Router) Subscribers(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Router) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(models.OutboundEnvelope{Event: event, Data: payload})
	if err != nil {
		r.logger.Error("encoding frame", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

// enqueue runs under r.mu so Close can never race a send.
func (r *Router) enqueue(c Client, event string, frame []byte) bool {
	select {
	case c.GetSendChannel() <- frame:
		return true
	default:
		r.logger.Warn("send buffer full, dropping frame",
			zap.String("conn", c.GetConnectionID()), zap.String("event", event))
		return false
	}
}
