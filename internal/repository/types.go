package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

// Settings is one guild's row. Fields left at their column defaults until a
// guild changes them with /config.
type Settings struct {
	GuildID               string
	PlaylistLimit         int
	SecondsWaitAfterEmpty int
	LeaveIfNoListeners    bool
	AutoAnnounceNext      bool
}

func (s Settings) WaitAfterEmpty() time.Duration {
	return time.Duration(s.SecondsWaitAfterEmpty) * time.Second
}

// CatalogEntry is a cached catalog listing, stored as JSON.
type CatalogEntry struct {
	Key       string
	Payload   string
	FetchedAt time.Time
}
