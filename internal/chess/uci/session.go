package uci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	defaultQuitGrace     = 500 * time.Millisecond
	pipeDrainDelay       = time.Second
	killWaitTimeout      = 5 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	outputQueueSize      = 256
	stderrTailBytes      = 4 * 1024
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateSpawning
	StateReady
	StateAnalyzing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateAnalyzing:
		return "analyzing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	BinaryPath       string
	Args             []string
	Options          Options
	HandshakeTimeout time.Duration
	QuitGrace        time.Duration
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultReadyTimeout
	}
	if c.QuitGrace <= 0 {
		c.QuitGrace = defaultQuitGrace
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type outputEvent struct {
	line string
	err  error
}

// Session owns one engine process. Only one search runs at a time and a
// session that has failed is never used again.
type Session struct {
	cfg Config
	log *zap.Logger
	cmd *exec.Cmd

	mu       sync.Mutex
	stdin    io.WriteCloser
	state    State
	exitCode int
	waitErr  error
	name     string

	search sync.Mutex
	stderr *tailBuffer

	output  chan outputEvent
	closing chan struct{}
	exited  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSession spawns the engine and completes the UCI handshake. The process
// is terminated if the handshake fails.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	s, err := Spawn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Handshake(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Spawn starts the engine process without talking to it.
func Spawn(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := validateOptions(cfg.Options); err != nil {
		return nil, newFailure(ProcessSpawnFailed, err)
	}
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, newFailure(ProcessSpawnFailed, errors.New("binary path required"))
	}
	if err := ctx.Err(); err != nil {
		return nil, newFailure(ProcessSpawnFailed, err)
	}

	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger.With(zap.String("engine", cfg.BinaryPath)),
		state:    StateSpawning,
		exitCode: -1,
		stderr:   &tailBuffer{max: stderrTailBytes},
		output:   make(chan outputEvent, outputQueueSize),
		closing:  make(chan struct{}),
		exited:   make(chan struct{}),
	}

	cmd := exec.Command(cfg.BinaryPath, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateFailed)
		return nil, newFailure(ProcessSpawnFailed, fmt.Errorf("create stdin pipe: %w", err))
	}
	stdout := &stdoutSink{session: s}
	cmd.Stdout = stdout
	cmd.Stderr = &stderrSink{session: s}
	cmd.WaitDelay = pipeDrainDelay

	if err := cmd.Start(); err != nil {
		stdin.Close()
		s.setState(StateFailed)
		return nil, newFailure(ProcessSpawnFailed, fmt.Errorf("start engine: %w", err))
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.mu.Unlock()
	go s.wait(stdout)

	s.setState(StateReady)
	s.log.Debug("engine process started", zap.Int("pid", cmd.Process.Pid))
	return s, nil
}

func (s *Session) wait(stdout *stdoutSink) {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.waitErr = err
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	code := s.exitCode
	s.mu.Unlock()
	close(s.exited)

	s.log.Debug("engine process exited", zap.Int("exit_code", code), zap.Error(err))

	if line, ok := stdout.buf.Flush(); ok {
		s.deliver(outputEvent{line: line})
	}
	close(s.output)
}

// Handshake sends uci/isready and applies the configured options.
func (s *Session) Handshake(ctx context.Context) error {
	if st := s.State(); st != StateReady {
		return fmt.Errorf("%w: handshake in state %s", ErrSessionBusy, st)
	}
	initCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return s.fail(s.crashed(fmt.Errorf("send uci: %w", err)))
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return s.fail(err)
	}

	for _, cmd := range optionCommands(s.cfg.Options) {
		if err := s.send(cmd); err != nil {
			return s.fail(s.crashed(fmt.Errorf("apply options: %w", err)))
		}
	}

	if err := s.send("isready\n"); err != nil {
		return s.fail(s.crashed(fmt.Errorf("send isready: %w", err)))
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return s.fail(err)
	}
	s.log.Debug("engine handshake complete", zap.String("name", s.Name()))
	return nil
}

// EnsureReady round-trips isready/readyok.
func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return s.crashed(fmt.Errorf("send isready: %w", err))
	}
	return s.awaitToken(readyCtx, "readyok")
}

// Reset reinitialises protocol state so a completed session can serve the
// next request.
func (s *Session) Reset(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()

	switch st := s.State(); st {
	case StateReady, StateCompleted:
	default:
		return fmt.Errorf("%w: reset in state %s", ErrSessionBusy, st)
	}

	if err := s.send("ucinewgame\n"); err != nil {
		return s.fail(s.crashed(fmt.Errorf("send ucinewgame: %w", err)))
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			s.setState(StateReady)
			return nil
		}
		if attempt == newGameRetryAttempts || FailureKindOf(err) == ProcessCrashed {
			return s.fail(err)
		}
		s.log.Warn("ensure ready retry after ucinewgame",
			zap.Int("attempt", attempt),
			zap.Int("max", newGameRetryAttempts),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return s.fail(ctx.Err())
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Analyze runs one search and resolves to exactly one outcome. The deadline
// timer starts once "go" has been written; a terminal line that was already
// delivered when the timer fires still wins.
func (s *Session) Analyze(ctx context.Context, req Search) (Result, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := CheckPosition(req.Position); err != nil {
		return Result{}, err
	}
	if err := CheckMoves(req.Moves); err != nil {
		return Result{}, err
	}
	goTokens, err := buildGoTokens(req)
	if err != nil {
		return Result{}, err
	}
	if !s.transition(StateReady, StateAnalyzing) {
		return Result{}, fmt.Errorf("%w: analyze in state %s", ErrSessionBusy, s.State())
	}

	positionCmd := buildPositionCommand(req.Position, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return Result{}, s.fail(s.crashed(fmt.Errorf("send position: %w", err)))
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return Result{}, s.fail(s.crashed(fmt.Errorf("send go: %w", err)))
	}

	deadline := computeSearchTimeout(req)
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var st ParseState
	for {
		select {
		case ev, ok := <-s.output:
			if !ok {
				return Result{}, s.fail(s.crashed(nil))
			}
			if res, done, err := s.consume(ev, &st); done {
				return res, err
			}
		case <-timer.C:
			if res, done, err := s.drain(&st); done {
				return res, err
			}
			_ = s.send("stop\n")
			s.log.Warn("engine search timed out",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Duration("deadline", deadline))
			return Result{}, s.fail(newFailure(Timeout, fmt.Errorf("no bestmove within %s", deadline)))
		case <-ctx.Done():
			_ = s.send("stop\n")
			return Result{}, s.fail(fmt.Errorf("analysis cancelled: %w", ctx.Err()))
		}
	}
}

func (s *Session) consume(ev outputEvent, st *ParseState) (Result, bool, error) {
	if ev.err != nil {
		return Result{}, true, s.fail(newFailure(MalformedOutput, ev.err))
	}
	Observe(ev.line, st)
	if !st.Done {
		return Result{}, false, nil
	}
	if st.NoMove {
		return Result{}, true, s.fail(newFailure(NoResultProduced, errors.New("engine reported no legal move")))
	}
	s.setState(StateCompleted)
	return st.Result(), true, nil
}

// drain consumes output that is already queued without blocking.
func (s *Session) drain(st *ParseState) (Result, bool, error) {
	for {
		select {
		case ev, ok := <-s.output:
			if !ok {
				return Result{}, true, s.fail(s.crashed(nil))
			}
			if res, done, err := s.consume(ev, st); done {
				return res, true, err
			}
		default:
			return Result{}, false, nil
		}
	}
}

// Close asks the engine to quit, kills it after the grace period and waits
// for it to exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Session) shutdown() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	close(s.closing)

	s.mu.Lock()
	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		_ = s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()

	grace := time.NewTimer(s.cfg.QuitGrace)
	defer grace.Stop()
	select {
	case <-s.exited:
		return nil
	case <-grace.C:
	}

	s.log.Debug("engine ignored quit, killing")
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill engine (pid %d): %w", s.cmd.Process.Pid, err)
	}

	killWait := time.NewTimer(killWaitTimeout)
	defer killWait.Stop()
	select {
	case <-s.exited:
		return nil
	case <-killWait.C:
		return fmt.Errorf("engine (pid %d) did not exit after kill", s.cmd.Process.Pid)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Name is the engine's "id name", known after the handshake.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited is closed once the engine process has been reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// Reusable reports whether the session may be handed to another request.
func (s *Session) Reusable() bool {
	select {
	case <-s.exited:
		return false
	case <-s.closing:
		return false
	default:
	}
	switch s.State() {
	case StateReady, StateCompleted:
		return true
	default:
		return false
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) fail(err error) error {
	s.setState(StateFailed)
	return err
}

// crashed builds a ProcessCrashed failure once the process has been reaped,
// or wraps cause when it is still running.
func (s *Session) crashed(cause error) error {
	select {
	case <-s.exited:
	case <-time.After(s.cfg.QuitGrace):
		return newFailure(ProcessCrashed, cause)
	}
	s.mu.Lock()
	code, waitErr := s.exitCode, s.waitErr
	s.mu.Unlock()
	if cause == nil {
		cause = waitErr
	}
	return &EngineFailure{
		Kind:     ProcessCrashed,
		ExitCode: code,
		Stderr:   s.stderr.String(),
		Err:      cause,
	}
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return ErrSessionClosed
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		select {
		case ev, ok := <-s.output:
			if !ok {
				return s.crashed(fmt.Errorf("waiting for %s", token))
			}
			if ev.err != nil {
				return newFailure(MalformedOutput, ev.err)
			}
			if name, ok := strings.CutPrefix(ev.line, "id name "); ok {
				s.mu.Lock()
				s.name = strings.TrimSpace(name)
				s.mu.Unlock()
			}
			if isToken(ev.line, token) {
				return nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return newFailure(Timeout, fmt.Errorf("waiting for %s: %w", token, ctx.Err()))
			}
			return fmt.Errorf("waiting for %s: %w", token, ctx.Err())
		}
	}
}

// isToken reports whether line is the handshake reply token. Only the first
// word counts; "info string readyok" is not a reply.
func isToken(line, token string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && fields[0] == token
}

func (s *Session) deliver(ev outputEvent) bool {
	select {
	case s.output <- ev:
		return true
	case <-s.closing:
		return false
	}
}

// stdoutSink receives stdout in whatever chunks the pipe produces. exec
// calls Write from a single goroutine, so line order is preserved.
type stdoutSink struct {
	session *Session
	buf     lineBuffer
}

func (w *stdoutSink) Write(p []byte) (int, error) {
	lines, err := w.buf.Write(p)
	for _, line := range lines {
		if !w.session.deliver(outputEvent{line: line}) {
			return len(p), nil
		}
	}
	if err != nil {
		w.session.deliver(outputEvent{err: err})
	}
	return len(p), nil
}

type stderrSink struct {
	session *Session
	buf     lineBuffer
}

func (w *stderrSink) Write(p []byte) (int, error) {
	w.session.stderr.Write(p)
	lines, _ := w.buf.Write(p)
	for _, line := range lines {
		w.session.log.Debug("engine stderr", zap.String("line", line))
	}
	return len(p), nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
