package presence

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	writeErr error
	pingErr  error
	closed   bool
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(time.Hour, zap.NewNop(), nil)
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	r := newTestRegistry(t)
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register("p1", domain.RoleWorker, first)
	r.Register("p1", domain.RoleWorker, second)

	if !first.isClosed() {
		t.Fatalf("replaced connection must be closed")
	}
	if second.isClosed() {
		t.Fatalf("new connection must stay open")
	}
	if !r.Connected("p1") {
		t.Fatalf("principal should still be connected")
	}

	r.SendToPrincipal("p1", "ping", nil)
	if first.frameCount() != 0 {
		t.Fatalf("replaced connection must not receive frames")
	}
	if second.frameCount() != 1 {
		t.Fatalf("new connection should receive the frame")
	}
}

func TestUnregisterStaleConnectionKeepsSuccessor(t *testing.T) {
	r := newTestRegistry(t)
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register("p1", domain.RoleWorker, first)
	r.Register("p1", domain.RoleWorker, second)

	// the replaced connection's read loop exits and unregisters itself
	r.Unregister("p1", first)
	if !r.Connected("p1") {
		t.Fatalf("stale unregister must not evict the successor")
	}

	r.Unregister("p1", second)
	if r.Connected("p1") {
		t.Fatalf("current connection should be removed")
	}
}

func TestSendToPrincipal(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}
	r.Register("p1", domain.RoleUser, conn)

	if !r.SendToPrincipal("p1", EventNewNotification, map[string]string{"id": "n1"}) {
		t.Fatalf("expected delivery")
	}
	if r.SendToPrincipal("absent", EventNewNotification, nil) {
		t.Fatalf("send to unknown principal must report a drop")
	}

	if conn.frameCount() != 1 {
		t.Fatalf("want 1 frame, got %d", conn.frameCount())
	}
	var env Envelope
	if err := json.Unmarshal(conn.frames[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != EventNewNotification {
		t.Fatalf("want type %q, got %q", EventNewNotification, env.Type)
	}
}

func TestSendToPrincipalWriteFailure(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	r.Register("p1", domain.RoleUser, conn)

	if r.SendToPrincipal("p1", "event", nil) {
		t.Fatalf("failed write must report a drop")
	}
}

func TestSendToRoleFansOutToRoleOnly(t *testing.T) {
	r := newTestRegistry(t)
	admin1 := &fakeConn{}
	admin2 := &fakeConn{}
	worker := &fakeConn{}
	r.Register("a1", domain.RoleAdmin, admin1)
	r.Register("a2", domain.RoleAdmin, admin2)
	r.Register("w1", domain.RoleWorker, worker)

	delivered := r.SendToRole(domain.RoleAdmin, "ticket_resolved", nil)
	if delivered != 2 {
		t.Fatalf("want 2 deliveries, got %d", delivered)
	}
	if admin1.frameCount() != 1 || admin2.frameCount() != 1 {
		t.Fatalf("every admin connection should receive the frame")
	}
	if worker.frameCount() != 0 {
		t.Fatalf("worker must not receive an admin broadcast")
	}
}

func TestHeartbeatTerminatesUnresponsiveConnection(t *testing.T) {
	r := newTestRegistry(t)
	responsive := &fakeConn{}
	silent := &fakeConn{}
	r.Register("alive", domain.RoleWorker, responsive)
	r.Register("dead", domain.RoleWorker, silent)

	// first pass clears alive flags and pings both
	r.sweepConnections()
	if responsive.pings != 1 || silent.pings != 1 {
		t.Fatalf("both connections should be pinged")
	}

	// only one answers
	r.MarkAlive("alive")

	r.sweepConnections()
	if !r.Connected("alive") {
		t.Fatalf("responsive connection must survive")
	}
	if r.Connected("dead") {
		t.Fatalf("silent connection must be removed")
	}
	if !silent.isClosed() {
		t.Fatalf("silent connection must be closed")
	}
}

func TestHeartbeatRemovesConnectionOnPingFailure(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{pingErr: errors.New("gone")}
	r.Register("p1", domain.RoleWorker, conn)

	r.sweepConnections()
	if r.Connected("p1") {
		t.Fatalf("connection with failing transport must be removed")
	}
	if !conn.isClosed() {
		t.Fatalf("failing connection must be closed")
	}
}

func TestShutdownClosesAllConnections(t *testing.T) {
	r := newTestRegistry(t)
	r.Start()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	r.Register("p1", domain.RoleUser, c1)
	r.Register("p2", domain.RoleAdmin, c2)

	r.Shutdown()
	if !c1.isClosed() || !c2.isClosed() {
		t.Fatalf("shutdown must close every connection")
	}
	if r.Connected("p1") || r.Connected("p2") {
		t.Fatalf("registry must be empty after shutdown")
	}
}
