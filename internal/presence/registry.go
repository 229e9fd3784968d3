package presence

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/observability"
)

// EventNewNotification is the envelope type consumers key off for
// real-time notification pushes.
const EventNewNotification = "new_notification"

// Conn is the transport contract the registry expects: a bidirectional
// connection that can carry text frames and answer pings. The registry is
// transport-agnostic; the websocket adapter lives with the HTTP layer.
type Conn interface {
	WriteText(data []byte) error
	Ping() error
	Close() error
}

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// connection tracks one registered principal's live transport.
type connection struct {
	principalID string
	role        domain.Role
	conn        Conn

	// writeMu serializes frames so same-connection sends are delivered
	// in send order.
	writeMu sync.Mutex

	// alive is cleared before each ping and set by MarkAlive on pong.
	alive bool
}

func (c *connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteText(data)
}

// Registry holds at most one live connection per principal and fans
// events out to principals or role groups. Sends are fire-and-forget:
// a miss is silently dropped and the durable Notification record remains
// the fallback.
type Registry struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu    sync.RWMutex
	conns map[string]*connection

	heartbeat time.Duration
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
}

// NewRegistry creates an empty registry. Start launches the heartbeat.
func NewRegistry(heartbeat time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		logger:    logger,
		metrics:   metrics,
		conns:     make(map[string]*connection),
		heartbeat: heartbeat,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Register stores conn as the principal's live connection. If one already
// exists it is forcibly closed first: last writer wins, at most one
// authenticated connection per principal at any instant.
func (r *Registry) Register(principalID string, role domain.Role, conn Conn) {
	next := &connection{principalID: principalID, role: role, conn: conn, alive: true}

	r.mu.Lock()
	prev := r.conns[principalID]
	r.conns[principalID] = next
	size := len(r.conns)
	r.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
		r.logger.Info("replaced live connection", zap.String("principal_id", principalID))
	}
	r.metrics.SetPresenceConnections(size)
}

// Unregister removes the principal's connection, but only if it is still
// the given one; a connection replaced by a newer Register must not evict
// its successor on read-loop exit.
func (r *Registry) Unregister(principalID string, conn Conn) {
	r.mu.Lock()
	cur, ok := r.conns[principalID]
	if ok && cur.conn == conn {
		delete(r.conns, principalID)
	}
	size := len(r.conns)
	r.mu.Unlock()
	r.metrics.SetPresenceConnections(size)
}

// Connected reports whether the principal has a registered connection.
func (r *Registry) Connected(principalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[principalID]
	return ok
}

// MarkAlive records that the principal answered the last ping.
func (r *Registry) MarkAlive(principalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[principalID]; ok {
		c.alive = true
	}
}

// SendToPrincipal pushes one event to the principal's connection.
// Returns false when no live connection exists or the write failed;
// either way the event is dropped, never retried.
func (r *Registry) SendToPrincipal(principalID, eventType string, data any) bool {
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		r.logger.Warn("marshal push event", zap.Error(err))
		return false
	}

	r.mu.RLock()
	c, ok := r.conns[principalID]
	r.mu.RUnlock()
	if !ok {
		r.metrics.RecordPresenceSend(false)
		return false
	}

	if err := c.write(payload); err != nil {
		r.logger.Debug("push write failed",
			zap.String("principal_id", principalID), zap.Error(err))
		r.metrics.RecordPresenceSend(false)
		return false
	}
	r.metrics.RecordPresenceSend(true)
	return true
}

// SendToRole fans one event out to every connected principal with the
// given role and returns the number of successful deliveries.
func (r *Registry) SendToRole(role domain.Role, eventType string, data any) int {
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		r.logger.Warn("marshal push event", zap.Error(err))
		return 0
	}

	r.mu.RLock()
	targets := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		if c.role == role {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			r.metrics.RecordPresenceSend(false)
			continue
		}
		r.metrics.RecordPresenceSend(true)
		delivered++
	}
	return delivered
}

// Start launches the heartbeat loop: every interval each connection is
// pinged; one that never answered the previous ping is terminated.
func (r *Registry) Start() {
	go r.run()
}

func (r *Registry) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepConnections()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) sweepConnections() {
	r.mu.Lock()
	var dead []*connection
	for id, c := range r.conns {
		if !c.alive {
			delete(r.conns, id)
			dead = append(dead, c)
			continue
		}
		c.alive = false
	}
	live := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		live = append(live, c)
	}
	size := len(r.conns)
	r.mu.Unlock()

	for _, c := range dead {
		_ = c.conn.Close()
		r.logger.Info("terminated unresponsive connection",
			zap.String("principal_id", c.principalID))
	}
	for _, c := range live {
		if err := c.conn.Ping(); err != nil {
			r.Unregister(c.principalID, c.conn)
			_ = c.conn.Close()
		}
	}
	r.metrics.SetPresenceConnections(size)
}

// Shutdown stops the heartbeat and closes every connection.
func (r *Registry) Shutdown() {
	r.once.Do(func() { close(r.stop) })
	<-r.done

	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
	r.metrics.SetPresenceConnections(0)
}
