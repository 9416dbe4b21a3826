// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package selector implements the pure, deterministic song-selection
// cascade used by a Room to pick the next track from its queue.
package selector

import (
	"sort"

	"github.com/ManuGH/infinitune/internal/domain"
)

// Reason names the priority tier a Result was drawn from.
type Reason string

const (
	ReasonInterrupt    Reason = "interrupt"
	ReasonCurrentEpoch Reason = "current_epoch"
	ReasonFallback     Reason = "fallback"
	ReasonNone         Reason = "none"
)

// Result is the outcome of a pickNext call: either a chosen song and the
// tier it was drawn from, or Found=false when the playable set is empty.
type Result struct {
	Song   domain.Song
	Reason Reason
	Found  bool
}

// PickNext is a pure, total function: given the queue and cursor, it
// returns the next track under the fixed priority order. It performs no
// I/O and is deterministic for a given set of arguments.
//
// Priority order (first non-empty tier wins):
//  1. Interrupts: every playable candidate with IsInterrupt=true, oldest
//     CreatedAt first.
//  2. Current epoch (skipped when manualMode): candidates whose
//     PromptEpoch equals playlistEpoch, preferring the lowest OrderIndex
//     strictly greater than currentOrderIndex, else wrapping to the
//     lowest OrderIndex overall.
//  3. Fallback: all remaining playable candidates, same ahead-first-else-
//     wrap rule.
func PickNext(songs []domain.Song, currentSongID string, playlistEpoch int64, currentOrderIndex *float64, manualMode bool) Result {
	candidates := make([]domain.Song, 0, len(songs))
	for _, s := range songs {
		if s.ID == currentSongID {
			continue
		}
		if !s.Playable(manualMode) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return Result{Reason: ReasonNone, Found: false}
	}

	// P1 — Interrupts, FIFO.
	if interrupts := filterInterrupts(candidates); len(interrupts) > 0 {
		return Result{Song: oldest(interrupts), Reason: ReasonInterrupt, Found: true}
	}

	// P2 — Current epoch, ahead-first-else-wrap.
	if !manualMode {
		if epochCandidates := filterEpoch(candidates, playlistEpoch); len(epochCandidates) > 0 {
			return Result{Song: aheadOrWrap(epochCandidates, currentOrderIndex), Reason: ReasonCurrentEpoch, Found: true}
		}
	}

	// P3 — Fallback, same rule over everything remaining.
	return Result{Song: aheadOrWrap(candidates, currentOrderIndex), Reason: ReasonFallback, Found: true}
}

// FindGeneratingInterrupt returns the oldest in-flight interrupt (any
// status in the generating subset), used to populate the "next up"
// banner while an interrupt is still being produced.
func FindGeneratingInterrupt(songs []domain.Song) (domain.Song, bool) {
	var candidates []domain.Song
	for _, s := range songs {
		if s.IsInterrupt && s.Status.IsGenerating() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return domain.Song{}, false
	}
	return oldest(candidates), true
}

func filterInterrupts(songs []domain.Song) []domain.Song {
	var out []domain.Song
	for _, s := range songs {
		if s.IsInterrupt {
			out = append(out, s)
		}
	}
	return out
}

func filterEpoch(songs []domain.Song, epoch int64) []domain.Song {
	var out []domain.Song
	for _, s := range songs {
		if s.PromptEpoch == epoch {
			out = append(out, s)
		}
	}
	return out
}

func oldest(songs []domain.Song) domain.Song {
	best := songs[0]
	for _, s := range songs[1:] {
		if s.CreatedAt.Before(best.CreatedAt) {
			best = s
		}
	}
	return best
}

// aheadOrWrap returns the lowest OrderIndex strictly greater than cursor;
// if none exists (or cursor is nil), it wraps to the lowest OrderIndex
// overall.
func aheadOrWrap(songs []domain.Song, cursor *float64) domain.Song {
	sorted := make([]domain.Song, len(songs))
	copy(sorted, songs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	if cursor != nil {
		for _, s := range sorted {
			if s.OrderIndex > *cursor {
				return s
			}
		}
	}
	return sorted[0]
}
