package monitor

import (
	"context"
	"time"
)

// Serve writes the status file every interval until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.logger.Debug("starting status monitor", "file", s.deps.File, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.WriteStatus(s.GetStatus()); err != nil {
				s.logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

func (s *Service) String() string {
	return "status-monitor"
}
