package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PoolConfig struct {
	Session  Config
	Capacity int
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Total    int
	Idle     int
	Capacity int
}

// Pool keeps handshaken engine sessions for reuse. A borrowed session is
// owned by exactly one caller until Release.
type Pool struct {
	cfg      Config
	capacity int
	log      *zap.Logger

	mu     sync.Mutex
	total  int
	closed bool
	idle   chan *Session
	// freed is signalled whenever a slot is given up, so waiters can spawn
	// a replacement instead of waiting for an idle session.
	freed chan struct{}
	done  chan struct{}
}

var errPoolAtCapacity = errors.New("engine pool at capacity")

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Session.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.Session.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if err := validateOptions(cfg.Session.Options); err != nil {
		return nil, err
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultPoolCapacity()
	}
	sessionCfg := cfg.Session.withDefaults()

	return &Pool{
		cfg:      sessionCfg,
		capacity: capacity,
		log:      sessionCfg.Logger,
		idle:     make(chan *Session, capacity),
		freed:    make(chan struct{}, capacity),
		done:     make(chan struct{}),
	}, nil
}

// Acquire returns a ready session, reusing an idle one when possible.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		if p.isClosed() {
			return nil, ErrPoolClosed
		}

		select {
		case session := <-p.idle:
			if s, ok := p.revive(ctx, session); ok {
				return s, nil
			}
			continue
		default:
		}

		session, err := p.create(ctx)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, errPoolAtCapacity) {
			return nil, err
		}

		select {
		case session := <-p.idle:
			if s, ok := p.revive(ctx, session); ok {
				return s, nil
			}
		case <-p.freed:
		case <-p.done:
			return nil, ErrPoolClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release hands a session back. Sessions that failed, or that were used by
// a request that ended in err, are terminated instead of reused.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	if err != nil || !session.Reusable() {
		p.discard(session)
		return
	}

	p.mu.Lock()
	if !p.closed {
		select {
		case p.idle <- session:
			p.mu.Unlock()
			return
		default:
		}
	}
	p.mu.Unlock()
	p.discard(session)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	var (
		g    errgroup.Group
		errs []error
		mu   sync.Mutex
	)
	for {
		var session *Session
		select {
		case session = <-p.idle:
		default:
		}
		if session == nil {
			break
		}
		g.Go(func() error {
			if err := session.Close(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			p.decrement()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Total: p.total, Idle: len(p.idle), Capacity: p.capacity}
}

// revive resets an idle session for a new request; a session that cannot be
// reset is discarded.
func (p *Pool) revive(ctx context.Context, session *Session) (*Session, bool) {
	if session == nil {
		return nil, false
	}
	if !session.Reusable() {
		p.discard(session)
		return nil, false
	}
	if err := session.Reset(ctx); err != nil {
		p.log.Debug("discarding engine session after failed reset", zap.Int("pid", session.PID()), zap.Error(err))
		p.discard(session)
		return nil, false
	}
	return session, true
}

func (p *Pool) create(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.total >= p.capacity {
		p.mu.Unlock()
		return nil, errPoolAtCapacity
	}
	p.total++
	p.mu.Unlock()

	session, err := NewSession(ctx, p.cfg)
	if err != nil {
		p.decrement()
		return nil, err
	}
	return session, nil
}

func (p *Pool) discard(session *Session) {
	if err := session.Close(); err != nil {
		p.log.Warn("engine session close failed", zap.Int("pid", session.PID()), zap.Error(err))
	}
	p.decrement()
}

func (p *Pool) decrement() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func defaultPoolCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
