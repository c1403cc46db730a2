package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned for a missing settings row or cache key.
var ErrNotFound = errors.New("not found")

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

// UpsertSettings creates the guild's row with column defaults if needed and
// returns it.
func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id, updated_at) VALUES (?, ?)`, guild, r.now().Unix(),
	); err != nil {
		return nil, errors.Wrapf(err, "insert settings for %s", guild)
	}
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, playlist_limit, seconds_wait_after_empty,
	       leave_if_no_listeners, auto_announce_next_song
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var leave, announce int
	if err := row.Scan(&s.GuildID, &s.PlaylistLimit, &s.SecondsWaitAfterEmpty, &leave, &announce); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "read settings for %s", guild)
	}
	s.LeaveIfNoListeners = leave != 0
	s.AutoAnnounceNext = announce != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  playlist_limit=?,
		  seconds_wait_after_empty=?,
		  leave_if_no_listeners=?,
		  auto_announce_next_song=?,
		  updated_at=?
		WHERE guild_id=?`,
		s.PlaylistLimit, s.SecondsWaitAfterEmpty, boolToInt(s.LeaveIfNoListeners),
		boolToInt(s.AutoAnnounceNext), r.now().Unix(), s.GuildID,
	)
	if err != nil {
		return errors.Wrapf(err, "update settings for %s", s.GuildID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CatalogGet returns the cached payload for key if it was stored within ttl.
func (r *Repo) CatalogGet(ctx context.Context, key string, ttl time.Duration) (*CatalogEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, payload, fetched_at FROM catalog_cache WHERE key = ? AND fetched_at >= ?`,
		key, r.now().Add(-ttl).Unix())

	var e CatalogEntry
	var fetched int64
	if err := row.Scan(&e.Key, &e.Payload, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "read catalog cache %s", key)
	}
	e.FetchedAt = time.Unix(fetched, 0)
	return &e, nil
}

func (r *Repo) CatalogPut(ctx context.Context, key, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO catalog_cache(key, payload, fetched_at) VALUES (?, ?, ?)`,
		key, payload, r.now().Unix())
	return errors.Wrapf(err, "write catalog cache %s", key)
}

// CatalogPrune drops entries older than ttl and reports how many went.
func (r *Repo) CatalogPrune(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM catalog_cache WHERE fetched_at < ?`, r.now().Add(-ttl).Unix())
	if err != nil {
		return 0, errors.Wrap(err, "prune catalog cache")
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
