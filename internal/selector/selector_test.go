// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/infinitune/internal/domain"
)

func songAt(id string, order float64, epoch int64, status domain.SongStatus, interrupt bool, created time.Time) domain.Song {
	return domain.Song{
		ID:          id,
		CreatedAt:   created,
		OrderIndex:  order,
		Status:      status,
		IsInterrupt: interrupt,
		PromptEpoch: epoch,
	}
}

func TestPickNext_Determinism(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusReady, false, base),
		songAt("B", 2, 1, domain.SongStatusReady, true, base.Add(time.Second)),
		songAt("C", 3, 1, domain.SongStatusReady, false, base.Add(2*time.Second)),
	}
	cursor := 1.0
	first := PickNext(songs, "A", 1, &cursor, false)
	second := PickNext(songs, "A", 1, &cursor, false)
	assert.Equal(t, first, second)
}

func TestPickNext_S2_PriorityInterrupt(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusReady, false, base),
		songAt("B", 2, 1, domain.SongStatusReady, true, base.Add(time.Second)),
		songAt("C", 3, 1, domain.SongStatusReady, false, base.Add(2*time.Second)),
	}
	cursor := 1.0
	result := PickNext(songs, "A", 1, &cursor, false)
	require.True(t, result.Found)
	assert.Equal(t, "B", result.Song.ID)
	assert.Equal(t, ReasonInterrupt, result.Reason)
}

func TestPickNext_S3_Wrap(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusReady, false, base),
		songAt("B", 2, 1, domain.SongStatusReady, false, base.Add(time.Second)),
	}
	cursor := 2.0
	result := PickNext(songs, "B", 1, &cursor, false)
	require.True(t, result.Found)
	assert.Equal(t, "A", result.Song.ID)
	assert.Equal(t, ReasonCurrentEpoch, result.Reason)
}

func TestPickNext_FallbackWhenNoCurrentEpoch(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 2, domain.SongStatusReady, false, base),
	}
	cursor := 0.0
	result := PickNext(songs, "", 1, &cursor, false)
	require.True(t, result.Found)
	assert.Equal(t, "A", result.Song.ID)
	assert.Equal(t, ReasonFallback, result.Reason)
}

func TestPickNext_EmptyQueue(t *testing.T) {
	result := PickNext(nil, "", 1, nil, false)
	assert.False(t, result.Found)
	assert.Equal(t, ReasonNone, result.Reason)
}

func TestPickNext_ManualModeIncludesPlayed(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusPlayed, false, base),
	}
	result := PickNext(songs, "", 1, nil, true)
	require.True(t, result.Found)
	assert.Equal(t, "A", result.Song.ID)

	result = PickNext(songs, "", 1, nil, false)
	assert.False(t, result.Found)
}

func TestPickNext_ExcludesCurrentSong(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusReady, false, base),
	}
	result := PickNext(songs, "A", 1, nil, false)
	assert.False(t, result.Found)
}

func TestFindGeneratingInterrupt(t *testing.T) {
	base := time.Now()
	songs := []domain.Song{
		songAt("A", 1, 1, domain.SongStatusReady, false, base),
		songAt("B", 2, 1, domain.SongStatusGeneratingAudio, true, base.Add(time.Second)),
		songAt("C", 3, 1, domain.SongStatusPending, true, base),
	}
	song, ok := FindGeneratingInterrupt(songs)
	require.True(t, ok)
	assert.Equal(t, "C", song.ID)
}

func TestFindGeneratingInterrupt_None(t *testing.T) {
	_, ok := FindGeneratingInterrupt(nil)
	assert.False(t, ok)
}
