package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/the-lightning-land/lnurld/lnurl"
)

// MemoryStore keeps challenges in process memory. It does not survive
// restarts and is not shared between instances.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*Challenge),
	}
}

func (s *MemoryStore) Insert(_ context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[c.Token]; ok {
		return ErrTokenExists
	}

	stored := *c
	s.challenges[c.Token] = &stored

	return nil
}

func (s *MemoryStore) Consume(_ context.Context, token string, tag lnurl.Tag, now time.Time) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.challenges[token]
	if err := Redeemable(c, tag, now); err != nil {
		return nil, err
	}

	c.Consumed = true
	consumed := *c

	return &consumed, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, token)
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.challenges)
}
