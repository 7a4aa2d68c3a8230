package snapshots

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/events"
)

// sessionRecorder is a fake driver that tags every statement with the
// connection it ran on. FOREIGN_KEY_CHECKS is session-scoped in MySQL, so
// the restore path must keep its toggles, drops, and replay on one
// connection even while other pool users run concurrently.
type sessionRecorder struct {
	mu     sync.Mutex
	nextID int
	stmts  []sessionStmt
}

type sessionStmt struct {
	conn  int
	query string
}

func (d *sessionRecorder) Open(string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return &sessionConn{d: d, id: d.nextID}, nil
}

func (d *sessionRecorder) record(conn int, query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stmts = append(d.stmts, sessionStmt{conn: conn, query: query})
}

func (d *sessionRecorder) recorded() []sessionStmt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sessionStmt(nil), d.stmts...)
}

type sessionConnector struct{ d *sessionRecorder }

func (c sessionConnector) Connect(context.Context) (driver.Conn, error) { return c.d.Open("") }

func (c sessionConnector) Driver() driver.Driver { return c.d }

type sessionConn struct {
	d  *sessionRecorder
	id int
}

func (c *sessionConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

func (c *sessionConn) Close() error { return nil }

func (c *sessionConn) Begin() (driver.Tx, error) {
	c.d.record(c.id, "BEGIN")
	return sessionTx{c: c}, nil
}

func (c *sessionConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.d.record(c.id, query)
	return driver.ResultNoRows, nil
}

func (c *sessionConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.d.record(c.id, query)
	return &noRows{cols: []string{"Tables_in_featherpanel"}}, nil
}

type sessionTx struct{ c *sessionConn }

func (t sessionTx) Commit() error {
	t.c.d.record(t.c.id, "COMMIT")
	return nil
}

func (t sessionTx) Rollback() error {
	t.c.d.record(t.c.id, "ROLLBACK")
	return nil
}

type noRows struct{ cols []string }

func (r *noRows) Columns() []string { return r.cols }

func (r *noRows) Close() error { return nil }

func (r *noRows) Next([]driver.Value) error { return io.EOF }

func TestPerformRestoreStaysOnOneSession(t *testing.T) {
	recorder := &sessionRecorder{}
	db := sql.OpenDB(sessionConnector{d: recorder})
	defer db.Close()
	db.SetMaxOpenConns(2)

	cfg := &config.Config{StorageRoot: t.TempDir()}
	m := NewManager(cfg, db, nil, noopBus{})

	// A competing pool user, like the scheduler or activity logging in
	// production.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				db.Exec("SELECT 1")
			}
		}
	}()

	err := m.PerformRestore("CREATE TABLE `featherpanel_users` (id INT);")
	close(stop)
	wg.Wait()
	require.NoError(t, err)

	stmts := recorder.recorded()

	restoreConn := 0
	for _, s := range stmts {
		if s.query == "SET FOREIGN_KEY_CHECKS = 0" {
			restoreConn = s.conn
			break
		}
	}
	require.NotZero(t, restoreConn, "FK disable was never executed")

	// Every restore statement, the transaction, and the FK re-enable must
	// share the session that disabled FK checks.
	var sawBegin, sawCommit, sawReplay, sawEnable bool
	for _, s := range stmts {
		switch {
		case s.query == "BEGIN":
			if s.conn == restoreConn {
				sawBegin = true
			}
		case s.query == "COMMIT":
			if s.conn == restoreConn {
				sawCommit = true
			}
		case strings.HasPrefix(s.query, "CREATE TABLE"):
			assert.Equal(t, restoreConn, s.conn, "replay statement left the restore session")
			sawReplay = true
		case s.query == "SET FOREIGN_KEY_CHECKS = 1":
			assert.Equal(t, restoreConn, s.conn, "FK re-enable ran on a different session")
			sawEnable = true
		}
	}
	assert.True(t, sawBegin, "transaction did not begin on the restore session")
	assert.True(t, sawCommit, "transaction did not commit on the restore session")
	assert.True(t, sawReplay)
	assert.True(t, sawEnable)
}

type capturingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *capturingBus) Publish(kind string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, kind)
}

func (b *capturingBus) Subscribe(string, events.Handler) {}

func (b *capturingBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func TestRestoreUploadedPublishesRestoreEvent(t *testing.T) {
	recorder := &sessionRecorder{}
	db := sql.OpenDB(sessionConnector{d: recorder})
	defer db.Close()

	bus := &capturingBus{}
	cfg := &config.Config{StorageRoot: t.TempDir()}
	m := NewManager(cfg, db, nil, bus)

	err := m.RestoreUploaded("upload.fpb", "CREATE TABLE `featherpanel_users` (id INT);")
	require.NoError(t, err)
	assert.Equal(t, []string{events.SnapshotRestored}, bus.published())
}
