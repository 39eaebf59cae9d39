// Package lock serializes work per driver. Inside one process a keyed mutex
// is enough; with Redis configured the lock is shared across replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrBusy is returned when the lock could not be taken before ctx ended.
var ErrBusy = errors.New("lock_busy")

// WaitObserver receives how long a successful Lock call waited.
type WaitObserver func(time.Duration)

type Option func(*options)

type options struct {
	observeWait WaitObserver
}

// WithWaitObserver reports lock wait times, typically to a histogram.
func WithWaitObserver(fn WaitObserver) Option {
	return func(o *options) {
		if fn != nil {
			o.observeWait = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{observeWait: func(time.Duration) {}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// DriverKey is the lock key guarding a driver's deliveries and payroll.
func DriverKey(driverID fmt.Stringer) string {
	return "routepay:lock:driver:" + driverID.String()
}

type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
	opts  options
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an in-process Locker.
func NewLocal(opts ...Option) Locker {
	return &keyedMutex{slots: make(map[string]*slot), opts: buildOptions(opts)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lock key is empty")
	}
	started := time.Now()

	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrBusy, key, ctx.Err())
	}
	k.opts.observeWait(time.Since(started))

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}, nil
}

func (k *keyedMutex) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}
