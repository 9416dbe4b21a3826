// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roster

import (
	"context"
	"time"

	"github.com/ManuGH/infinitune/internal/metrics"
)

// SweeperConfig controls the grace-period reaping loop.
type SweeperConfig struct {
	Interval      time.Duration
	GraceInterval time.Duration // how long a Room may sit empty before removal
}

// Sweeper periodically reaps Rooms that have been empty for longer than
// GraceInterval.
type Sweeper struct {
	Roster *Roster
	Conf   SweeperConfig
}

// Run starts the sweeper loop; it blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Conf.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", s.Conf.Interval).Msg("roster sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one sweep pass. Deterministic, suitable for
// unit testing without a ticker.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	reaped := 0
	for _, r := range s.Roster.ListRooms() {
		emptySince, isEmpty := r.EmptySince()
		if !isEmpty {
			continue
		}
		if time.Since(emptySince) < s.Conf.GraceInterval {
			continue
		}
		if err := s.Roster.RemoveRoom(ctx, r.ID()); err != nil {
			logger.Warn().Err(err).Str("room_id", r.ID()).Msg("sweeper failed to remove room")
			continue
		}
		metrics.IncRoomsReaped("grace_expired")
		reaped++
	}
	if reaped > 0 {
		logger.Info().Int("count", reaped).Msg("sweeper reaped empty rooms")
	}
}
