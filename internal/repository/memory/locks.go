package memory

import (
	"context"
	"sync"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
)

var (
	_ infra.Locker      = (*Locker)(nil)
	_ infra.IntentStore = (*Intents)(nil)
)

// Locker is the single-process stand-in for the redis lock.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

func NewLocker(wait time.Duration) *Locker {
	return &Locker{held: make(map[string]chan struct{}), wait: wait}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return nil, apperror.ErrBusy
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type Intents struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]intentEntry
	now   func() time.Time
}

type intentEntry struct {
	intent  domain.CheckoutIntent
	expires time.Time
}

func NewIntents(ttl time.Duration) *Intents {
	return &Intents{ttl: ttl, items: make(map[string]intentEntry), now: time.Now}
}

// Save keeps the first shopper to claim a merchantUid until the entry expires;
// the same shopper may overwrite it.
func (s *Intents) Save(_ context.Context, intent *domain.CheckoutIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.items[intent.MerchantUID]; ok && !now.After(e.expires) && e.intent.UserID != intent.UserID {
		return apperror.ErrIntentTaken
	}
	s.items[intent.MerchantUID] = intentEntry{intent: *intent, expires: now.Add(s.ttl)}
	return nil
}

func (s *Intents) Get(_ context.Context, merchantUID string) (*domain.CheckoutIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[merchantUID]
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expires) {
		delete(s.items, merchantUID)
		return nil, nil
	}
	in := e.intent
	return &in, nil
}

func (s *Intents) Delete(_ context.Context, merchantUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, merchantUID)
	return nil
}
