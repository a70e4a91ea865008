package daemon

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/libraryhub/backend/internal/services"
)

// FineSweeper runs one overdue reconciliation pass
type FineSweeper interface {
	UpdateFines(ctx context.Context) (*services.SweepResult, error)
}

// Sweeper runs the fine sweep on a fixed interval until its context is cancelled
type Sweeper struct {
	Fines    FineSweeper
	Interval time.Duration
}

// Start launches the sweep loop in the background. The returned channel is closed once the loop
// has exited. A non-positive interval disables the loop.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.Interval <= 0 {
		log.Println("[SWEEP] periodic sweep disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		log.Printf("[SWEEP] periodic sweep every %s", s.Interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
	return done
}

func (s *Sweeper) runOnce(ctx context.Context) {
	_, err := s.Fines.UpdateFines(ctx)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrSweepInProgress):
		log.Println("[SWEEP] skipped, another instance is sweeping")
	case ctx.Err() != nil:
	default:
		log.Printf("[SWEEP] periodic sweep failed: %v", err)
	}
}
