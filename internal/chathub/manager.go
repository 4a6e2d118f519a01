package chathub

import (
	"context"
	"time"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"
	"codecollab/backend/internal/presence"
	"codecollab/backend/internal/signaling"

	"go.uber.org/zap"
)

// ManagerService owns the connection lifecycle. Its Run loop serializes
// register and unregister, tears down presence and calls synchronously on
// disconnect, and sweeps idle pair sessions.
type ManagerService struct {
	Router    *Router
	Presence  *presence.Registry
	Signaling *signaling.Relay

	RegisterCh   chan Client
	UnregisterCh chan Client

	sweepInterval time.Duration
	done          chan struct{}
	logger        *zap.Logger
}

func NewManagerService(router *Router, registry *presence.Registry, relay *signaling.Relay, sweepInterval time.Duration, logger *zap.Logger) *ManagerService {
	if sweepInterval <= 0 {
		sweepInterval = config.PairSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManagerService{
		Router:        router,
		Presence:      registry,
		Signaling:     relay,
		RegisterCh:    make(chan Client),
		UnregisterCh:  make(chan Client),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case <-ticker.C:
			m.Presence.SweepIdlePairSessions()

		case <-ctx.Done():
			m.logger.Info("hub stopping", zap.Int("connections", m.Router.ConnectionCount()))
			m.Router.CloseAll()
			return
		}
	}
}

// Register hands a new client to the hub, which attaches and starts it. It
// returns false once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister asks the hub to drop c. Safe to call after the hub stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

func (m *ManagerService) register(c Client) {
	id := c.GetConnectionID()
	m.Router.Attach(c)
	m.Router.ToConnection(id, models.EventConnected, models.ConnectedPayload{ConnectionID: id})
	c.Run()
	m.logger.Info("client connected", zap.String("conn", id))
}

func (m *ManagerService) unregister(c Client) {
	id := c.GetConnectionID()
	m.Presence.Leave(id)
	m.Signaling.Disconnect(id)
	if m.Router.Detach(id) {
		m.logger.Info("client disconnected", zap.String("conn", id))
	}
}
