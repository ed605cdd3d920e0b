// Package poster saves poster images of scraped records in the background.
package poster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/JohnDeved/addmovie/internal/scrape"
)

// Downloader is the HTTP capability the manager needs.
type Downloader interface {
	Download(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// Status represents a poster fetch's state.
type Status int

const (
	StatusQueued Status = iota
	StatusActive
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusActive:
		return "Fetching"
	case StatusCompleted:
		return "Saved"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrNoPoster is returned when a record has no poster fragment.
var ErrNoPoster = errors.New("record has no poster")

// Item is one poster fetch.
type Item struct {
	ID          int
	IMDbID      string
	URL         string
	DestPath    string
	TotalBytes  atomic.Int64
	DoneBytes   atomic.Int64
	Status      Status
	Error       error
	CompletedAt time.Time
	Mu          sync.Mutex
}

// State returns the item's status and error under its lock.
func (it *Item) State() (Status, error) {
	it.Mu.Lock()
	defer it.Mu.Unlock()
	return it.Status, it.Error
}

// Manager fetches posters with bounded parallelism.
type Manager struct {
	client Downloader
	cdn    string
	dir    string
	sem    *semaphore.Weighted
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	items    []*Item
	byIMDbID map[string]*Item
	nextID   int
	onChange func()
	wg       sync.WaitGroup
}

// NewManager creates a poster manager saving into dir.
func NewManager(c Downloader, cdn, dir string, maxParallel int, log zerolog.Logger) *Manager {
	if maxParallel < 1 {
		maxParallel = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		client:   c,
		cdn:      cdn,
		dir:      dir,
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		log:      log,
		byIMDbID: map[string]*Item{},
	}
}

// SetOnChange sets a callback invoked when any item's state changes.
func (m *Manager) SetOnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// PathFor returns where rec's poster is (or would be) saved.
func (m *Manager) PathFor(rec scrape.Record) string {
	return filepath.Join(m.dir, rec.ID+".jpg")
}

// Enqueue starts fetching rec's poster unless it is already queued, saved,
// or on disk. Returns the item and whether a new fetch was started.
func (m *Manager) Enqueue(rec scrape.Record) (*Item, bool, error) {
	posterURL := rec.PosterURL(m.cdn)
	if posterURL == "" {
		return nil, false, ErrNoPoster
	}

	m.mu.Lock()
	if it, ok := m.byIMDbID[rec.ID]; ok {
		if status, _ := it.State(); status != StatusFailed {
			m.mu.Unlock()
			return it, false, nil
		}
	}

	m.nextID++
	item := &Item{
		ID:       m.nextID,
		IMDbID:   rec.ID,
		URL:      posterURL,
		DestPath: m.PathFor(rec),
		Status:   StatusQueued,
	}
	if _, err := os.Stat(item.DestPath); err == nil {
		item.Status = StatusCompleted
		item.CompletedAt = time.Now()
		m.items = append(m.items, item)
		m.byIMDbID[rec.ID] = item
		m.mu.Unlock()
		m.notify()
		return item, false, nil
	}
	m.items = append(m.items, item)
	m.byIMDbID[rec.ID] = item
	m.wg.Add(1)
	m.mu.Unlock()

	m.notify()
	go m.process(item)
	return item, true, nil
}

// Lookup returns the latest item for an IMDb ID.
func (m *Manager) Lookup(imdbID string) (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byIMDbID[imdbID]
	return it, ok
}

// Items returns a snapshot of all items.
func (m *Manager) Items() []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Item, len(m.items))
	copy(result, m.items)
	return result
}

// Wait blocks until every started fetch has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close aborts in-flight fetches and waits for them to return. Items
// enqueued afterwards fail immediately.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) process(item *Item) {
	defer m.wg.Done()

	ctx := m.ctx
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(item, err)
		return
	}
	defer m.sem.Release(1)

	item.Mu.Lock()
	item.Status = StatusActive
	item.Mu.Unlock()
	m.notify()

	m.finish(item, m.fetch(ctx, item))
}

func (m *Manager) finish(item *Item, err error) {
	item.Mu.Lock()
	if err != nil {
		item.Status = StatusFailed
		item.Error = err
	} else {
		item.Status = StatusCompleted
		item.CompletedAt = time.Now()
	}
	item.Mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Str("imdb_id", item.IMDbID).Str("url", item.URL).Msg("Poster fetch failed")
	} else {
		m.log.Debug().Str("imdb_id", item.IMDbID).Str("path", item.DestPath).Msg("Poster saved")
	}
	m.notify()
}

func (m *Manager) fetch(ctx context.Context, item *Item) error {
	if err := os.MkdirAll(filepath.Dir(item.DestPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	body, contentLength, err := m.client.Download(ctx, item.URL)
	if err != nil {
		return err
	}
	defer body.Close()
	if contentLength > 0 {
		item.TotalBytes.Store(contentLength)
	}

	partPath := item.DestPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}

	err = m.copyBody(ctx, item, f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("writing poster: %w", cerr)
	}
	if err != nil {
		os.Remove(partPath)
		return err
	}

	if err := os.Rename(partPath, item.DestPath); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// copyBody streams body into f, counting bytes as they arrive.
func (m *Manager) copyBody(ctx context.Context, item *Item, f io.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing poster: %w", werr)
			}
			item.DoneBytes.Add(int64(n))
			m.notify()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
	}
}
