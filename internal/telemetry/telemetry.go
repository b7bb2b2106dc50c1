// Package telemetry implements §4.I: a durable append-only log of tool
// invocations with live observer fan-out, backed by SQLite. Grounded on
// original_source/src/dashboard/logger.py's DashboardLogger, translated
// from Python's queue.Queue/threading/asyncio stack into goroutines and
// channels, and on the teacher's internal/symbols/service_sqlite.go for
// the modernc.org/sqlite + WAL-mode + bep/debounce wiring idiom.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	DefaultPoolSize      = 5
	MaxPoolSize          = 10
	DefaultQueueCapacity = 10000
	DefaultSendDeadline  = 1 * time.Second
	DefaultRetentionDays = 30
	DefaultOrphanAfter   = 1 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Config controls one Sink's pool sizing, queue bound, fan-out
// deadline, and retention policy.
type Config struct {
	DBPath         string
	PoolSize       int
	QueueCapacity  int
	SendDeadline   time.Duration
	RetentionDays  int
	OrphanAfter    time.Duration
	SweepInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PoolSize > MaxPoolSize {
		c.PoolSize = MaxPoolSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.SendDeadline <= 0 {
		c.SendDeadline = DefaultSendDeadline
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.OrphanAfter <= 0 {
		c.OrphanAfter = DefaultOrphanAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Entry is one InvocationLogEntry row (§3).
type Entry struct {
	ID         string
	StartedAt  time.Time
	ToolName   string
	Params     json.RawMessage
	Result     json.RawMessage
	DurationMS float64
	ClientID   string
	SessionID  string
	Status     string // "in-progress", "success", "error"
	ErrorText  string
}

// Session is one TelemetrySession row (§3).
type Session struct {
	SessionID  string
	ClientInfo json.RawMessage
	StartedAt  time.Time
	EndedAt    *time.Time
	ToolCount  int
}

// Stats summarizes the log, matching the original logger's
// get_statistics (§ SUPPLEMENTED FEATURES).
type Stats struct {
	TotalToolCalls    int
	ToolUsage         map[string]int
	StatusCounts      map[string]int
	ActiveSessions    int
	ConnectedObservers int
	DroppedEntries    int64
}

// entryOp is one pending database write; the queue holds these between
// LogStart/LogEnd and the background worker's write.
type entryOp struct {
	insert *Entry
	update *logUpdate
}

type logUpdate struct {
	id         string
	result     json.RawMessage
	durationMS float64
	status     string
	errorText  string
}

// Sink is the telemetry write pipeline plus its read-side introspection
// surface. The zero value is not usable; construct with New.
type Sink struct {
	cfg Config
	db  *sql.DB

	queue chan entryOp

	mu             sync.Mutex
	active         map[string]*Session
	observers      map[chan Entry]struct{}
	dropped        int64
	workerDone     chan struct{}
	sweepStop      chan struct{}
	sweepDone      chan struct{}
	sweepNow       chan struct{}
	closeOnce      sync.Once
}

// New opens (creating if needed) the SQLite database at cfg.DBPath,
// applies schema, and starts the background writer and retention
// sweeper.
func New(cfg Config) (*Sink, error) {
	cfg = cfg.withDefaults()
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("telemetry: DBPath must not be empty")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("telemetry: create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=8000&_fk=1", filepath.ToSlash(cfg.DBPath))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Sink{
		cfg:        cfg,
		db:         db,
		queue:      make(chan entryOp, cfg.QueueCapacity),
		active:     make(map[string]*Session),
		observers:  make(map[chan Entry]struct{}),
		workerDone: make(chan struct{}),
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
		sweepNow:   make(chan struct{}, 1),
	}

	go s.worker()
	go s.sweepLoop()
	s.triggerSweep() // reconcile orphaned in-progress rows left from a prior process

	return s, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`CREATE TABLE IF NOT EXISTS logs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			params TEXT,
			result TEXT,
			duration_ms REAL,
			client_id TEXT,
			session_id TEXT,
			status TEXT NOT NULL,
			error_text TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			client_info TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			tool_count INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_logs_started_at ON logs(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_logs_tool_name ON logs(tool_name);`,
		`CREATE INDEX IF NOT EXISTS idx_logs_session_id ON logs(session_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("telemetry: apply schema: %w", err)
		}
	}
	return nil
}

// StartSession records a new client session.
func (s *Sink) StartSession(sessionID string, clientInfo any) error {
	info, err := json.Marshal(clientInfo)
	if err != nil {
		return fmt.Errorf("telemetry: marshal client info: %w", err)
	}
	sess := &Session{SessionID: sessionID, ClientInfo: info, StartedAt: time.Now()}

	s.mu.Lock()
	s.active[sessionID] = sess
	s.mu.Unlock()

	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (session_id, client_info, started_at, tool_count) VALUES (?, ?, ?, 0)`,
		sess.SessionID, string(sess.ClientInfo), sess.StartedAt.Format(time.RFC3339Nano))
	return err
}

// EndSession closes a client session, persisting its final tool count.
func (s *Sink) EndSession(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.active[sessionID]
	if ok {
		delete(s.active, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	ended := time.Now()
	_, err := s.db.Exec(`UPDATE sessions SET ended_at = ?, tool_count = ? WHERE session_id = ?`,
		ended.Format(time.RFC3339Nano), sess.ToolCount, sessionID)
	return err
}

// LogStart enqueues an in-progress entry and returns its id
// synchronously (§4.I pipeline); the actual database write happens on
// the background worker.
func (s *Sink) LogStart(tool string, params any, clientID, sessionID string) string {
	id := uuid.NewString()
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte("null")
	}
	entry := &Entry{
		ID:        id,
		StartedAt: time.Now(),
		ToolName:  tool,
		Params:    raw,
		ClientID:  clientID,
		SessionID: sessionID,
		Status:    "in-progress",
	}

	s.mu.Lock()
	if sess, ok := s.active[sessionID]; ok {
		sess.ToolCount++
	}
	s.mu.Unlock()

	s.enqueue(entryOp{insert: entry})
	s.broadcast(*entry)
	return id
}

// LogEnd mutates the entry identified by id in place with its outcome.
func (s *Sink) LogEnd(id string, result any, duration time.Duration, status, errorText string) {
	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte("null")
	}
	upd := &logUpdate{id: id, result: raw, durationMS: float64(duration.Microseconds()) / 1000.0, status: status, errorText: errorText}
	s.enqueue(entryOp{update: upd})
	s.broadcast(Entry{ID: id, Result: raw, DurationMS: upd.durationMS, Status: status, ErrorText: errorText})
}

// enqueue is the non-blocking bounded-queue push: if the queue is
// full, the oldest pending write is dropped and counted rather than
// blocking the caller (§4.I pipeline).
func (s *Sink) enqueue(op entryOp) {
	select {
	case s.queue <- op:
		return
	default:
	}

	select {
	case <-s.queue:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	default:
	}

	select {
	case s.queue <- op:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

func (s *Sink) worker() {
	defer close(s.workerDone)
	for op := range s.queue {
		if op.insert != nil {
			s.writeInsert(op.insert)
		}
		if op.update != nil {
			s.writeUpdate(op.update)
		}
	}
}

func (s *Sink) writeInsert(e *Entry) {
	_, _ = s.db.Exec(`INSERT INTO logs (id, started_at, tool_name, params, result, duration_ms, client_id, session_id, status, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt.Format(time.RFC3339Nano), e.ToolName, string(e.Params), nullableJSON(e.Result), e.DurationMS, e.ClientID, e.SessionID, e.Status, nullableString(e.ErrorText))
}

func (s *Sink) writeUpdate(u *logUpdate) {
	_, _ = s.db.Exec(`UPDATE logs SET result = ?, duration_ms = ?, status = ?, error_text = ? WHERE id = ?`,
		nullableJSON(u.result), u.durationMS, u.status, nullableString(u.errorText), u.id)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Subscribe registers an observer for live entry fan-out. The returned
// channel is buffered by 1; the caller must drain it promptly since
// each send is bounded by cfg.SendDeadline and a slow or absent
// receiver is unsubscribed automatically. Call the returned function
// to unsubscribe early.
func (s *Sink) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 1)
	s.mu.Lock()
	s.observers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if _, ok := s.observers[ch]; ok {
			delete(s.observers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

// broadcast fans entry out to every observer concurrently, each bounded
// by cfg.SendDeadline; observers that time out or whose channel is
// gone are removed. Durability comes from the database write, not this
// fan-out, so a missed broadcast is not a correctness problem.
func (s *Sink) broadcast(entry Entry) {
	s.mu.Lock()
	obs := make([]chan Entry, 0, len(s.observers))
	for ch := range s.observers {
		obs = append(obs, ch)
	}
	s.mu.Unlock()
	if len(obs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range obs {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer := time.NewTimer(s.cfg.SendDeadline)
			defer timer.Stop()
			select {
			case ch <- entry:
			case <-timer.C:
				s.mu.Lock()
				if _, ok := s.observers[ch]; ok {
					delete(s.observers, ch)
					close(ch)
				}
				s.mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// Stats reports dashboard-style counters over the durable log plus
// live in-memory state (active sessions, connected observers).
func (s *Sink) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ToolUsage: make(map[string]int), StatusCounts: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&stats.TotalToolCalls); err != nil {
		return Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, COUNT(*) FROM logs GROUP BY tool_name`)
	if err != nil {
		return Stats{}, err
	}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			rows.Close()
			return Stats{}, err
		}
		stats.ToolUsage[name] = count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM logs GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return Stats{}, err
		}
		stats.StatusCounts[status] = count
	}
	rows.Close()

	s.mu.Lock()
	stats.ActiveSessions = len(s.active)
	stats.ConnectedObservers = len(s.observers)
	stats.DroppedEntries = s.dropped
	s.mu.Unlock()

	return stats, nil
}

// RecentLogs returns up to limit log rows, most recent first,
// optionally filtered by tool name and/or session id.
func (s *Sink) RecentLogs(ctx context.Context, limit, offset int, toolName, sessionID string) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, started_at, tool_name, params, result, duration_ms, client_id, session_id, status, error_text FROM logs`
	var conditions []string
	var args []any
	if toolName != "" {
		conditions = append(conditions, "tool_name = ?")
		args = append(args, toolName)
	}
	if sessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, sessionID)
	}
	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var startedAt string
		var params, result, errorText sql.NullString
		if err := rows.Scan(&e.ID, &startedAt, &e.ToolName, &params, &result, &e.DurationMS, &e.ClientID, &e.SessionID, &e.Status, &errorText); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if params.Valid {
			e.Params = json.RawMessage(params.String)
		}
		if result.Valid {
			e.Result = json.RawMessage(result.String)
		}
		e.ErrorText = errorText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns every known session, most recently started first.
func (s *Sink) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, client_info, started_at, ended_at, tool_count FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var clientInfo sql.NullString
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&sess.SessionID, &clientInfo, &startedAt, &endedAt, &sess.ToolCount); err != nil {
			return nil, err
		}
		if clientInfo.Valid {
			sess.ClientInfo = json.RawMessage(clientInfo.String)
		}
		sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err == nil {
				sess.EndedAt = &t
			}
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// triggerSweep requests an out-of-band sweep (used at startup to
// reconcile orphaned rows without waiting for the first tick);
// sweepLoop debounces this against the regular ticker so a sweep
// requested moments before a scheduled one collapses into a single
// pass.
func (s *Sink) triggerSweep() {
	select {
	case s.sweepNow <- struct{}{}:
	default:
	}
}

func (s *Sink) sweepLoop() {
	defer close(s.sweepDone)
	debounced := debounce.New(1 * time.Second)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			debounced(s.sweep)
		case <-s.sweepNow:
			debounced(s.sweep)
		}
	}
}

// sweep deletes log rows older than cfg.RetentionDays and reconciles
// in-progress rows older than cfg.OrphanAfter into status=error,
// error_text=orphaned (§ SUPPLEMENTED FEATURES retention sweeper).
func (s *Sink) sweep() {
	cutoff := time.Now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	_, _ = s.db.Exec(`DELETE FROM logs WHERE started_at < ?`, cutoff.Format(time.RFC3339Nano))

	orphanCutoff := time.Now().Add(-s.cfg.OrphanAfter)
	_, _ = s.db.Exec(`UPDATE logs SET status = 'error', error_text = 'orphaned' WHERE status = 'in-progress' AND started_at < ?`,
		orphanCutoff.Format(time.RFC3339Nano))
}

// Close stops the background worker and sweeper and closes the
// database. Safe to call once.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.workerDone

		close(s.sweepStop)
		<-s.sweepDone

		s.mu.Lock()
		for ch := range s.observers {
			delete(s.observers, ch)
			close(ch)
		}
		s.mu.Unlock()

		err = s.db.Close()
	})
	return err
}
