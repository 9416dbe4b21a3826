// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/ManuGH/infinitune/internal/domain"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/validate"
)

// Config defines operational parameters for the SQLite connection pool.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	QueryTimeout time.Duration // per-call deadline applied to every Store method
}

// DefaultConfig returns sane pool defaults for a single-writer coordinator
// workload: modest concurrency, WAL mode, bounded busy wait.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 10,
		QueryTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements Store against a modernc.org/sqlite-backed
// database. Mandatory PRAGMAs are embedded in the DSN so they apply to
// every connection in the pool.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Open opens (or creates) the SQLite database at dbPath and returns a
// Store. The schema is assumed to already exist; this package does not
// own migrations.
func Open(dbPath string, cfg Config) (*SQLiteStore, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping failed: %w", err)
	}

	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the connection pool can still reach the database file.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func (s *SQLiteStore) GetPlaylistByKey(ctx context.Context, key string) (*Playlist, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var p Playlist
	row := s.db.QueryRowContext(ctx, `SELECT id, prompt_epoch, name FROM playlists WHERE playlist_key = ?`, key)
	if err := row.Scan(&p.ID, &p.PromptEpoch, &p.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		metrics.IncStorageError("get_playlist_by_key")
		return nil, fmt.Errorf("storage: get playlist by key: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var p Playlist
	row := s.db.QueryRowContext(ctx, `SELECT id, prompt_epoch, name FROM playlists WHERE id = ?`, id)
	if err := row.Scan(&p.ID, &p.PromptEpoch, &p.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		metrics.IncStorageError("get_playlist")
		return nil, fmt.Errorf("storage: get playlist: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetSongQueue(ctx context.Context, playlistID string) ([]domain.Song, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, order_index, status, is_interrupt, prompt_epoch,
		       title, artist, cover_url, audio_url, bpm, song_key, duration, lyrics, rating
		FROM songs
		WHERE playlist_id = ?
		ORDER BY order_index ASC`, playlistID)
	if err != nil {
		metrics.IncStorageError("get_song_queue")
		return nil, fmt.Errorf("storage: get song queue: %w", err)
	}
	defer rows.Close()

	var songs []domain.Song
	for rows.Next() {
		var sg domain.Song
		var createdAtUnix int64
		var statusRaw string
		if err := rows.Scan(
			&sg.ID, &createdAtUnix, &sg.OrderIndex, &statusRaw, &sg.IsInterrupt, &sg.PromptEpoch,
			&sg.Title, &sg.Artist, &sg.CoverURL, &sg.AudioURL, &sg.BPM, &sg.Key, &sg.Duration, &sg.Lyrics, &sg.Rating,
		); err != nil {
			metrics.IncStorageError("get_song_queue")
			return nil, fmt.Errorf("storage: scan song row: %w", err)
		}
		sg.CreatedAt = time.Unix(createdAtUnix, 0)
		status, err := domain.ParseSongStatus(statusRaw)
		if err != nil {
			metrics.IncStorageError("get_song_queue")
			return nil, fmt.Errorf("storage: song %s: %w", sg.ID, err)
		}
		sg.Status = status

		// A song whose stored audio URL no longer validates (operator edit,
		// data corruption) must not be handed to the room as playable: it
		// would select a song no player can actually fetch. Downgrading its
		// status here, at the storage boundary, keeps that check in one
		// place instead of duplicated in every consumer of GetSongQueue.
		if sg.Status == domain.SongStatusReady {
			v := validate.New()
			v.MediaURL("audioUrl", sg.AudioURL)
			if !v.IsValid() {
				metrics.IncStorageError("invalid_song_media_url")
				sg.Status = domain.SongStatusError
			}
		}

		songs = append(songs, sg)
	}
	if err := rows.Err(); err != nil {
		metrics.IncStorageError("get_song_queue")
		return nil, fmt.Errorf("storage: iterate song rows: %w", err)
	}
	return songs, nil
}

func (s *SQLiteStore) UpdateSongStatus(ctx context.Context, songID string, status domain.SongStatus) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE songs SET status = ? WHERE id = ?`, status.String(), songID)
	if err != nil {
		metrics.IncStorageError("update_song_status")
		return fmt.Errorf("storage: update song status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		metrics.IncStorageError("update_song_status")
		return fmt.Errorf("storage: update song status rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetDeviceByToken(ctx context.Context, token string) (*Device, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var d Device
	row := s.db.QueryRowContext(ctx, `SELECT id, token FROM devices WHERE token = ?`, token)
	if err := row.Scan(&d.ID, &d.Token); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		metrics.IncStorageError("get_device_by_token")
		return nil, fmt.Errorf("storage: get device by token: %w", err)
	}
	return &d, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var u User
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, userID)
	if err := row.Scan(&u.ID, &u.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		metrics.IncStorageError("get_user_by_id")
		return nil, fmt.Errorf("storage: get user by id: %w", err)
	}
	return &u, nil
}

var _ Store = (*SQLiteStore)(nil)
