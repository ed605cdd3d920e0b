package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JohnDeved/addmovie/internal/scrape"
)

// DB wraps the SQLite database of saved titles.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the SQLite database at the given path.
func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS movies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		imdb_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		year TEXT NOT NULL DEFAULT '0000',
		type TEXT NOT NULL DEFAULT 'NA',
		image_url TEXT NOT NULL DEFAULT '',
		amazon_id TEXT NOT NULL DEFAULT '',
		query_str TEXT NOT NULL DEFAULT '',
		fallback INTEGER NOT NULL DEFAULT 0,
		last_update DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_movies_amazon ON movies(amazon_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS movies_fts USING fts5(
		title,
		content=movies,
		content_rowid=id,
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER IF NOT EXISTS movies_ai AFTER INSERT ON movies BEGIN
		INSERT INTO movies_fts(rowid, title) VALUES (new.id, new.title);
	END;

	CREATE TRIGGER IF NOT EXISTS movies_ad AFTER DELETE ON movies BEGIN
		INSERT INTO movies_fts(movies_fts, rowid, title) VALUES('delete', old.id, old.title);
	END;

	CREATE TRIGGER IF NOT EXISTS movies_au AFTER UPDATE ON movies BEGIN
		INSERT INTO movies_fts(movies_fts, rowid, title) VALUES('delete', old.id, old.title);
		INSERT INTO movies_fts(rowid, title) VALUES (new.id, new.title);
	END;
	`
	_, err := db.Exec(schema)
	return err
}

// Saved is a stored record with its bookkeeping columns.
type Saved struct {
	scrape.Record
	Query      string    `json:"query"`
	LastUpdate time.Time `json:"last_update"`
}

// sanitizeFTS5Query escapes FTS5 special characters so user input
// does not cause syntax errors. Each word is wrapped in double quotes,
// and embedded double quotes are doubled (FTS5 escaping).
func sanitizeFTS5Query(query string) string {
	words := strings.Fields(query)
	var quoted []string
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		w = strings.NewReplacer(
			"(", "",
			")", "",
			"[", "",
			"]", "",
			"{", "",
			"}", "",
			"^", "",
			"*", "",
			":", "",
		).Replace(w)
		if w == "" {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " ")
}

// Exists reports whether rec's IMDb ID is already stored.
func (d *DB) Exists(ctx context.Context, rec scrape.Record) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM movies WHERE imdb_id = ?", rec.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", rec.ID, err)
	}
	return true, nil
}

// Insert stores rec. An existing row with the same IMDb ID is overwritten.
func (d *DB) Insert(ctx context.Context, rec scrape.Record) error {
	if rec.ID == "" {
		return errors.New("record has no imdb id")
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO movies (imdb_id, title, year, type, image_url, amazon_id, query_str, fallback, last_update)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(imdb_id) DO UPDATE SET
			title=excluded.title, year=excluded.year, type=excluded.type,
			image_url=excluded.image_url, amazon_id=excluded.amazon_id,
			query_str=excluded.query_str, fallback=excluded.fallback,
			last_update=excluded.last_update`,
		rec.ID, rec.Title, rec.Year, rec.Type, rec.ImageURL, rec.AmazonID,
		rec.Query(), rec.Fallback, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", rec.ID, err)
	}
	return nil
}

const savedColumns = `m.imdb_id, m.title, m.year, m.type, m.image_url, m.amazon_id, m.query_str, m.fallback, m.last_update`

func scanSaved(row interface{ Scan(...any) error }) (Saved, error) {
	var s Saved
	var last sql.NullTime
	if err := row.Scan(&s.ID, &s.Title, &s.Year, &s.Type, &s.ImageURL, &s.AmazonID, &s.Query, &s.Fallback, &last); err != nil {
		return Saved{}, err
	}
	if last.Valid {
		s.LastUpdate = last.Time
	}
	return s, nil
}

// Get returns the stored record for an IMDb ID ("tt..."), or false.
func (d *DB) Get(ctx context.Context, imdbID string) (Saved, bool, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+savedColumns+" FROM movies m WHERE m.imdb_id = ?", imdbID)
	s, err := scanSaved(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Saved{}, false, nil
	}
	if err != nil {
		return Saved{}, false, err
	}
	return s, true, nil
}

// List returns saved records, most recently updated first.
func (d *DB) List(ctx context.Context, limit int) ([]Saved, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+savedColumns+" FROM movies m ORDER BY m.last_update DESC, m.id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing movies: %w", err)
	}
	return collect(rows)
}

// Search performs a full-text search over saved titles.
func (d *DB) Search(ctx context.Context, query string, limit int) ([]Saved, error) {
	if limit <= 0 {
		limit = 50
	}

	sanitized := sanitizeFTS5Query(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+savedColumns+`
		FROM movies_fts fts
		JOIN movies m ON m.id = fts.rowid
		WHERE movies_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Saved, error) {
	defer rows.Close()
	var out []Saved
	for rows.Next() {
		s, err := scanSaved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IDsUpdatedBefore returns the IMDb IDs of records last updated before t,
// oldest first. A zero t selects every record.
func (d *DB) IDsUpdatedBefore(ctx context.Context, t time.Time) ([]string, error) {
	query := "SELECT imdb_id FROM movies ORDER BY last_update, id"
	var args []any
	if !t.IsZero() {
		query = "SELECT imdb_id FROM movies WHERE last_update IS NULL OR last_update < ? ORDER BY last_update, id"
		args = append(args, t)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a saved record. It reports whether a row was removed.
func (d *DB) Delete(ctx context.Context, imdbID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM movies WHERE imdb_id = ?", imdbID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Stats summarises the store.
type Stats struct {
	Movies       int
	WithPoster   int
	WithAmazonID int
}

// GetStats returns statistics about the store.
func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(image_url != ''), 0),
		       COALESCE(SUM(amazon_id != ''), 0)
		FROM movies`).Scan(&s.Movies, &s.WithPoster, &s.WithAmazonID)
	return s, err
}
