// Package supervisor implements §4.D: it owns a map of ProjectRoot to
// ServerSession, spawning, health-checking, restarting, and reusing
// language-server subprocesses. Modeled on the teacher's
// validation.LSPClient.GetOrStartServer double-checked-locking shape,
// generalized from one-server-per-language to one-server-per-project-root
// and given an explicit restart/drain lifecycle.
package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"swiftlens/internal/lsp"
	"swiftlens/internal/project"
	"swiftlens/internal/swifterr"
	"swiftlens/internal/transport"
)

// Config controls how language-server subprocesses are spawned and
// reaped.
type Config struct {
	// Command is the language-server executable; Args are passed as-is.
	Command string
	Args    []string

	InitTimeout  time.Duration // default 60s per spec.md §4.D
	IdleTimeout  time.Duration // sessions idle longer than this are reaped
	DrainGrace   time.Duration // grace period for in-flight requests to finish
	MaxFrameSize int
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig(command string, args ...string) Config {
	return Config{
		Command:      command,
		Args:         args,
		InitTimeout:  60 * time.Second,
		IdleTimeout:  10 * time.Minute,
		DrainGrace:   5 * time.Second,
		MaxFrameSize: transport.DefaultMaxFrameSize,
	}
}

// Session is the supervisor's view of one ServerSession (§3). It holds
// no back-pointer to the Supervisor; a session that dies reports itself
// via the FatalFunc passed to lsp.New, not by reaching back in.
type Session struct {
	Root   project.Root
	Client *lsp.Client

	cmd       *exec.Cmd
	transport *transport.Framed

	mu       sync.Mutex
	lastUsed time.Time
	lost     bool
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) isLost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

func (s *Session) markLost() {
	s.mu.Lock()
	s.lost = true
	s.mu.Unlock()
}

// idleFor reports how long the session has sat unused.
func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsed)
}

// kill force-terminates the subprocess without the ordered
// shutdown/exit handshake; used when a session is lost or the process
// must be reaped immediately.
func (s *Session) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cmd != nil {
		_, _ = s.cmd.Process.Wait()
	}
}

// Supervisor owns exactly one Session per distinct ProjectRoot at any
// instant (spec.md §3 invariant).
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session // keyed by project.Root.Path

	reaperStop chan struct{}
	reaperDone chan struct{}

	// spawnFn creates a fresh Session for root. It defaults to
	// spawnProcess; tests substitute a fake so reuse/restart/shutdown
	// logic can be exercised without a real language server binary.
	spawnFn func(context.Context, project.Root) (*Session, error)
}

// New constructs a Supervisor and starts its idle-session reaper.
func New(cfg Config) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		sessions:   make(map[string]*Session),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	s.spawnFn = s.spawnProcess
	go s.reapLoop()
	return s
}

// NewWithSpawner constructs a Supervisor that creates sessions via
// spawnFn instead of a real subprocess, for package analyzer and
// others to exercise session-consuming logic against an in-memory LSP
// server.
func NewWithSpawner(cfg Config, spawnFn func(context.Context, project.Root) (*Session, error)) *Supervisor {
	s := New(cfg)
	s.spawnFn = spawnFn
	return s
}

func (s *Supervisor) reapLoop() {
	defer close(s.reaperDone)
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.reaperStop:
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

func (s *Supervisor) reapIdle() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	var toClose []*Session
	s.mu.Lock()
	for key, sess := range s.sessions {
		if sess.idleFor() >= s.cfg.IdleTimeout {
			toClose = append(toClose, sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	for _, sess := range toClose {
		s.teardown(sess)
	}
}

// Acquire returns a ready session for root, creating and initializing
// one if none exists yet. Concurrent callers for the same root race on
// creation but only one subprocess is spawned (double-checked locking,
// same shape as the teacher's GetOrStartServer).
func (s *Supervisor) Acquire(ctx context.Context, root project.Root) (*Session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[root.Path]; ok && !sess.isLost() {
		s.mu.Unlock()
		sess.touch()
		return sess, nil
	}
	s.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring the exclusive lock.
	if sess, ok := s.sessions[root.Path]; ok && !sess.isLost() {
		sess.touch()
		return sess, nil
	}

	sess, err := s.spawnFn(ctx, root)
	if err != nil {
		return nil, err
	}
	s.sessions[root.Path] = sess
	return sess, nil
}

// spawnProcess starts a fresh subprocess, wires transport+client, and runs
// initialize with a bounded timeout. On any failure the subprocess is
// killed and no half-open session is left in the map.
func (s *Supervisor) spawnProcess(ctx context.Context, root project.Root) (*Session, error) {
	if _, err := exec.LookPath(s.cfg.Command); err != nil {
		return nil, swifterr.Wrap(swifterr.Environment, err, "language server %q not found", s.cfg.Command)
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = root.Path

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, swifterr.Wrap(swifterr.Environment, err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, swifterr.Wrap(swifterr.Environment, err, "stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, swifterr.Wrap(swifterr.Environment, err, "start language server process")
	}

	tr := transport.New(stdin, stdout, stdin)
	if s.cfg.MaxFrameSize > 0 {
		tr.SetMaxFrameSize(s.cfg.MaxFrameSize)
	}

	sess := &Session{Root: root, cmd: cmd, transport: tr, lastUsed: time.Now()}

	client := lsp.New(tr, func(err error) {
		sess.markLost()
	})
	client.Start()
	sess.Client = client

	initCtx, cancel := context.WithTimeout(ctx, s.cfg.InitTimeout)
	defer cancel()

	if _, err := client.Initialize(initCtx, cmd.Process.Pid, root.Path); err != nil {
		sess.kill()
		return nil, swifterr.Wrap(swifterr.Environment, err, "initialize language server for %s", root.Path)
	}

	return sess, nil
}

// Invalidate drops root's session from the map (if any) without
// waiting for in-flight operations; those fail with session-lost when
// they next touch the transport. Used for explicit invalidation
// (Design Notes: restart policy). The fatal-transport callback set up
// by spawnProcess does not call it: that callback only marks the
// session lost, and the next Acquire for the root replaces it.
func (s *Supervisor) Invalidate(root project.Root) {
	s.mu.Lock()
	sess, ok := s.sessions[root.Path]
	if ok {
		delete(s.sessions, root.Path)
	}
	s.mu.Unlock()
	if ok {
		sess.markLost()
		go s.teardown(sess)
	}
}

// WithDocument opens uri on sess's client, runs fn, and always closes
// the document afterward. It sends didOpen on every call: a uri that
// is already open is opened again, and is closed when fn returns.
func WithDocument(ctx context.Context, sess *Session, uri, languageID string, version int, text string, fn func() error) error {
	if err := sess.Client.DidOpen(ctx, uri, languageID, version, text); err != nil {
		return err
	}
	defer func() {
		_ = sess.Client.DidClose(ctx, uri)
	}()
	return fn()
}

// teardown runs the ordered shutdown/exit/kill sequence for one
// session, regardless of whether it's still reachable from the map.
func (s *Supervisor) teardown(sess *Session) {
	if sess.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainGrace)
		_ = sess.Client.Shutdown(ctx, s.cfg.DrainGrace)
		cancel()
	}
	sess.kill()
}

// Shutdown drains every session in parallel (shutdown; exit; kill after
// grace) and stops the idle reaper. Safe to call once.
func (s *Supervisor) Shutdown() error {
	close(s.reaperStop)
	<-s.reaperDone

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for key, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	g := new(errgroup.Group)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			s.teardown(sess)
			return nil
		})
	}
	return g.Wait()
}

// SessionCount reports the number of live sessions, used by tests for
// the reuse property (§8 property 6).
func (s *Supervisor) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
