// Package lock serializes writers that must not race, such as two callers creating the same Object.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

// Lock is a held lock. Release is idempotent.
type Lock interface {
	Release(ctx context.Context) error
}

// Provider hands out locks keyed by (region, key). Acquire blocks until the lock is held, the
// provider's wait timeout passes (ErrConflict) or ctx is done.
type Provider interface {
	Acquire(ctx context.Context, region, key string) (Lock, error)
}

// Config bounds how long Acquire waits and how long a held lock lives.
type Config struct {
	WaitTimeout time.Duration
	Lease       time.Duration
}

// DefaultConfig waits 10 seconds and leases for 60.
func DefaultConfig() Config {
	return Config{WaitTimeout: 10 * time.Second, Lease: 60 * time.Second}
}

func timeoutError(region, key string, wait time.Duration) error {
	return fmt.Errorf("lock %s/%s not acquired within %s: %w", region, key, wait, apperrors.ErrConflict)
}

// LocalProvider is an in-process Provider.
type LocalProvider struct {
	cfg   Config
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(cfg Config) *LocalProvider {
	return &LocalProvider{cfg: cfg, slots: make(map[string]*localSlot)}
}

func (p *LocalProvider) Acquire(ctx context.Context, region, key string) (Lock, error) {
	name := region + "/" + key

	p.mu.Lock()
	slot, ok := p.slots[name]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		p.slots[name] = slot
	}
	slot.refs++
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		p.unref(name, slot)
		return nil, timeoutError(region, key, p.cfg.WaitTimeout)
	case <-ctx.Done():
		p.unref(name, slot)
		return nil, ctx.Err()
	}

	l := &localLock{provider: p, name: name, slot: slot}
	if p.cfg.Lease > 0 {
		l.lease = time.AfterFunc(p.cfg.Lease, l.release)
	}
	return l, nil
}

func (p *LocalProvider) unref(name string, slot *localSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(p.slots, name)
	}
}

type localLock struct {
	provider *LocalProvider
	name     string
	slot     *localSlot
	lease    *time.Timer
	once     sync.Once
}

func (l *localLock) Release(context.Context) error {
	if l.lease != nil {
		l.lease.Stop()
	}
	l.release()
	return nil
}

func (l *localLock) release() {
	l.once.Do(func() {
		<-l.slot.ch
		l.provider.unref(l.name, l.slot)
	})
}
