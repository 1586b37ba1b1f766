package mailer

import (
	"context"
	"fmt"
	"sync/atomic"
)

var (
	ErrNoHealthy = fmt.Errorf("no healthy mail providers")
	ErrNoAcquire = fmt.Errorf("mail provider not acquired")
)

// Pool fans a send out over the healthy providers, round-robin, with a
// bounded number of attempts per message.
type Pool struct {
	providers         []Mailer
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewPool(provs []Mailer, maxAttempts int) *Pool {
	if maxAttempts < 1 {
		maxAttempts = 2
	}

	return &Pool{providers: provs, maxAttempts: maxAttempts}
}

func (p *Pool) selectProvider() (Mailer, error) {
	healthy := make([]Mailer, 0, len(p.providers))
	for _, m := range p.providers {
		if m.Ready() {
			healthy = append(healthy, m)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := p.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (p *Pool) tryOnce(ctx context.Context, e Email) error {
	m, err := p.selectProvider()
	if err != nil {
		return err
	}

	if !m.Acquire() {
		return ErrNoAcquire
	}

	return m.Send(ctx, e)
}

// Send attempts delivery up to maxAttempts times, moving to the next
// healthy provider on each retry.
func (p *Pool) Send(ctx context.Context, e Email) error {
	var last error
	for i := 0; i < p.maxAttempts; i++ {
		if err := p.tryOnce(ctx, e); err == nil {
			return nil
		} else {
			last = err
		}
	}

	if last == nil {
		last = fmt.Errorf("send failed")
	}

	return last
}
