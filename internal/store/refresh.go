package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/scrape"
)

// Extractor re-scrapes a title by its numeric identifier.
type Extractor interface {
	Extract(ctx context.Context, id string) *scrape.Record
}

// RefreshProgress reports refresh progress.
type RefreshProgress struct {
	Current   string
	Total     int64
	Processed int64
	Updated   int64
	Errors    int64
}

// Refresher re-scrapes saved titles and upserts the fresh records.
type Refresher struct {
	extract    Extractor
	db         *DB
	staleAfter time.Duration
	workers    int
	onProgress func(RefreshProgress)
	log        zerolog.Logger

	progress  atomic.Pointer[RefreshProgress]
	mu        sync.Mutex
	total     atomic.Int64
	processed atomic.Int64
	updated   atomic.Int64
	errCount  atomic.Int64
}

// NewRefresher creates a refresher. Titles updated less than staleAfter ago
// are skipped; zero refreshes everything.
func NewRefresher(x Extractor, db *DB, staleAfter time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{
		extract:    x,
		db:         db,
		staleAfter: staleAfter,
		workers:    2,
		log:        log,
	}
}

// SetWorkers controls how many titles are scraped in parallel.
func (r *Refresher) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	r.workers = workers
}

// SetProgressCallback sets a function called after each title.
func (r *Refresher) SetProgressCallback(fn func(RefreshProgress)) {
	r.onProgress = fn
}

// Progress returns the latest progress.
func (r *Refresher) Progress() RefreshProgress {
	p := r.progress.Load()
	if p == nil {
		return RefreshProgress{}
	}
	return *p
}

func (r *Refresher) reportProgress(current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := RefreshProgress{
		Current:   current,
		Total:     r.total.Load(),
		Processed: r.processed.Load(),
		Updated:   r.updated.Load(),
		Errors:    r.errCount.Load(),
	}
	r.progress.Store(&p)
	if r.onProgress != nil {
		r.onProgress(p)
	}
}

// Run refreshes every stale title. A title whose page no longer yields a
// record keeps its stored values and counts as an error.
func (r *Refresher) Run(ctx context.Context) error {
	var before time.Time
	if r.staleAfter > 0 {
		before = time.Now().UTC().Add(-r.staleAfter)
	}
	ids, err := r.db.IDsUpdatedBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("listing stale titles: %w", err)
	}
	r.total.Store(int64(len(ids)))
	if len(ids) == 0 {
		r.reportProgress("")
		return nil
	}

	workers := min(r.workers, len(ids))
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				r.refreshOne(ctx, id)
			}
		}()
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

func (r *Refresher) refreshOne(ctx context.Context, imdbID string) {
	defer func() {
		r.processed.Add(1)
		r.reportProgress(imdbID)
	}()

	rec := r.extract.Extract(ctx, scrape.NormalizeID(imdbID))
	if rec == nil {
		r.errCount.Add(1)
		r.log.Warn().Str("imdb_id", imdbID).Msg("Refresh found no title; keeping stored record")
		return
	}
	stored, ok, err := r.db.Get(ctx, imdbID)
	if err != nil {
		r.errCount.Add(1)
		r.log.Error().Err(err).Str("imdb_id", imdbID).Msg("Refresh could not load stored record")
		return
	}
	merged := *rec
	if ok {
		merged = mergeRefreshed(stored.Record, *rec)
	}
	if err := r.db.Insert(ctx, merged); err != nil {
		r.errCount.Add(1)
		r.log.Error().Err(err).Str("imdb_id", imdbID).Msg("Refresh could not save record")
		return
	}
	r.updated.Add(1)
}

// mergeRefreshed overlays a fresh scrape on the stored record. Fields the
// scrape degraded to a sentinel or "" keep their stored value.
func mergeRefreshed(stored, fresh scrape.Record) scrape.Record {
	out := fresh
	if out.Title == "" {
		out.Title = stored.Title
	}
	if out.Year == scrape.UnknownYear || out.Year == "" {
		out.Year = stored.Year
	}
	if out.Type == scrape.UnknownType || out.Type == "" {
		out.Type = stored.Type
	}
	if out.ImageURL == "" {
		out.ImageURL = stored.ImageURL
	}
	if out.AmazonID == "" {
		out.AmazonID = stored.AmazonID
	}
	out.Fallback = fresh.Fallback && stored.Fallback
	return out
}
