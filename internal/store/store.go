// Package store persists chosen records.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/config"
	"github.com/JohnDeved/addmovie/internal/scrape"
)

// Store is the persistence capability the shell needs.
type Store interface {
	// Exists reports whether a record with the same IMDb ID is stored.
	Exists(ctx context.Context, rec scrape.Record) (bool, error)
	// Insert stores rec, replacing any record with the same IMDb ID.
	Insert(ctx context.Context, rec scrape.Record) error
}

// LogStore never finds anything and "inserts" by logging the record.
// It stands in for a real backend.
type LogStore struct {
	Log zerolog.Logger
}

func (LogStore) Exists(context.Context, scrape.Record) (bool, error) {
	return false, nil
}

func (s LogStore) Insert(_ context.Context, rec scrape.Record) error {
	s.Log.Info().
		Str("imdb_id", rec.ID).
		Str("title", rec.Title).
		Str("year", rec.Year).
		Str("type", rec.Type).
		Str("image_url", rec.ImageURL).
		Str("amazon_id", rec.AmazonID).
		Str("query", rec.Query()).
		Msg("Insert record")
	return nil
}

// Open returns the backend named by cfg.Store. The returned close func is
// never nil.
func Open(cfg *config.Config, log zerolog.Logger) (Store, func() error, error) {
	switch cfg.Store {
	case config.StoreLog:
		return LogStore{Log: log}, func() error { return nil }, nil
	case config.StoreSQLite, "":
		db, err := OpenDB(config.DBPath())
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
