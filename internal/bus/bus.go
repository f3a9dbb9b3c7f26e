// Package bus implements the Notification Bus (C2): per-user fan-out of
// Events to connected clients, and the mission-control facet that tracks
// whether a user's mission is running or has been asked to stop.
//
// Grounded on the session-lock map in internal/agent/tool_registry.go
// (a map of mutexes with reference counting) generalized here to a
// per-user registry of client sinks rather than per-session execution
// locks.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// sinkWriteTimeout bounds how long broadcast_to_user waits for one client's
// channel to accept an event before dropping it for that client.
const sinkWriteTimeout = 1 * time.Second

// sinkBufferSize is the per-client channel's capacity. The bus never
// buffers unboundedly — once a client's channel is full, further events for
// that client are dropped rather than queued.
const sinkBufferSize = 64

// userRegistry holds one user's connected client sinks plus their mission
// status, guarded by its own mutex so unrelated users never contend.
type userRegistry struct {
	mu      sync.Mutex
	clients map[string]*models.ClientConnection
	status  models.MissionStatus
}

// Bus is the process-wide Notification Bus. Safe for concurrent use by
// background mission jobs and HTTP/WS request handlers alike.
type Bus struct {
	mu     sync.Mutex
	users  map[string]*userRegistry
	logger *slog.Logger
}

// New constructs an empty Bus. If logger is nil, slog.Default() is used.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		users:  make(map[string]*userRegistry),
		logger: logger,
	}
}

func (b *Bus) registryFor(userID string) *userRegistry {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.users[userID]
	if !ok {
		reg = &userRegistry{clients: make(map[string]*models.ClientConnection)}
		b.users[userID] = reg
	}
	return reg
}

// Connect registers a client sink for userID and returns the channel the
// caller's write goroutine should drain. channelBuffer overrides
// sinkBufferSize when > 0, matching per-transport needs (e.g. a slower
// consumer wants more slack).
func (b *Bus) Connect(userID, clientID string) *models.ClientConnection {
	reg := b.registryFor(userID)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	conn := &models.ClientConnection{
		UserID:   userID,
		ClientID: clientID,
		Channel:  make(chan *models.Event, sinkBufferSize),
	}
	reg.clients[clientID] = conn
	return conn
}

// Disconnect removes a client sink. Safe to call more than once.
func (b *Bus) Disconnect(userID, clientID string) {
	b.mu.Lock()
	reg, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if conn, ok := reg.clients[clientID]; ok {
		close(conn.Channel)
		delete(reg.clients, clientID)
	}
}

// BroadcastToUser delivers event to every registered client of userID.
// Delivery is best-effort and FIFO per user: one slow or full client sink
// is dropped without blocking delivery to the others, per §4.2's
// backpressure rule.
func (b *Bus) BroadcastToUser(ctx context.Context, userID string, event *models.Event) {
	b.mu.Lock()
	reg, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return
	}

	reg.mu.Lock()
	sinks := make([]*models.ClientConnection, 0, len(reg.clients))
	for _, conn := range reg.clients {
		sinks = append(sinks, conn)
	}
	reg.mu.Unlock()

	for _, conn := range sinks {
		b.sendWithTimeout(ctx, conn, event)
	}
}

// SendToClient delivers event to exactly one client of userID, dropping it
// under the same backpressure rule as BroadcastToUser.
func (b *Bus) SendToClient(ctx context.Context, userID, clientID string, event *models.Event) {
	b.mu.Lock()
	reg, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return
	}

	reg.mu.Lock()
	conn, ok := reg.clients[clientID]
	reg.mu.Unlock()
	if !ok {
		return
	}

	b.sendWithTimeout(ctx, conn, event)
}

func (b *Bus) sendWithTimeout(ctx context.Context, conn *models.ClientConnection, event *models.Event) {
	timer := time.NewTimer(sinkWriteTimeout)
	defer timer.Stop()

	select {
	case conn.Channel <- event:
	case <-timer.C:
		b.logger.Warn("dropping event for backpressured client",
			"user_id", conn.UserID, "client_id", conn.ClientID, "event_type", event.Type)
	case <-ctx.Done():
	}
}

// RequestStop sets the stop_requested flag for userID's mission.
func (b *Bus) RequestStop(userID string) {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.status.StopRequested = true
}

// IsRunning reports whether userID currently has a mission marked running.
func (b *Bus) IsRunning(userID string) bool {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.status.Running
}

// StopRequested reports whether userID's running mission has been asked to
// stop.
func (b *Bus) StopRequested(userID string) bool {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.status.StopRequested
}

// SetRunning marks userID's mission as running and clears any prior
// stop_requested flag. Returns false without mutating state if a mission is
// already running for this user — the dispatch entry point must reject a
// concurrent mission for the same user per §5.
func (b *Bus) SetRunning(userID string) bool {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.status.Running {
		return false
	}
	now := time.Now()
	reg.status.Running = true
	reg.status.StopRequested = false
	reg.status.StartedAt = now
	reg.status.LastActivityAt = now
	return true
}

// SetFinished clears userID's mission status, allowing a subsequent
// dispatch.
func (b *Bus) SetFinished(userID string) {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.status.Running = false
	reg.status.StopRequested = false
}

// Touch records activity for userID's running mission, resetting the
// staleness clock the scheduler's sweep checks against.
func (b *Bus) Touch(userID string) {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.status.LastActivityAt = time.Now()
}

// RunningMission is one entry in RunningSnapshot's result.
type RunningMission struct {
	UserID         string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// RunningSnapshot returns every user currently marked running, for the
// stale-mission sweep to scan.
func (b *Bus) RunningSnapshot() []RunningMission {
	b.mu.Lock()
	userIDs := make([]string, 0, len(b.users))
	for id := range b.users {
		userIDs = append(userIDs, id)
	}
	b.mu.Unlock()

	var out []RunningMission
	for _, id := range userIDs {
		reg := b.registryFor(id)
		reg.mu.Lock()
		if reg.status.Running {
			out = append(out, RunningMission{
				UserID:         id,
				StartedAt:      reg.status.StartedAt,
				LastActivityAt: reg.status.LastActivityAt,
			})
		}
		reg.mu.Unlock()
	}
	return out
}

// ForceStop marks userID's mission as stopped without waiting for the
// Conductor's own loop to notice — used by the stale-mission sweep when a
// mission has crashed without reaching SetFinished.
func (b *Bus) ForceStop(userID string) {
	reg := b.registryFor(userID)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.status.Running = false
	reg.status.StopRequested = false
}
