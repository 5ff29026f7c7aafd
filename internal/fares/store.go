// Package fares keeps the return-ticket price table consulted by the
// getTicketPrice tool in a SQLite database.
package fares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Fare is one row of the price table.
type Fare struct {
	City      string    `json:"city"`
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultFares seeds a new database.
var DefaultFares = map[string]string{
	"london": "$799",
	"paris":  "$899",
	"tokyo":  "$1400",
}

// Store is a SQLite-backed fare table.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the fare database at path. An empty path opens
// a private in-memory database. A new database is seeded with DefaultFares.
func OpenStore(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = "file::memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create fares dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// An in-memory database lives and dies with its connection.
	if path == "" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(2)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS fares (
		city        TEXT PRIMARY KEY,
		price       TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// seed inserts DefaultFares once per database. The marker in kv keeps
// deleted defaults from coming back on the next open.
func (s *Store) seed() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var marker string
	err = tx.QueryRow(`SELECT value FROM kv WHERE key = 'seeded'`).Scan(&marker)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for city, price := range DefaultFares {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO fares (city, price, updated_at) VALUES (?, ?, ?)`, city, price, now); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO kv (key, value) VALUES ('seeded', ?)`, now); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// Price returns the fare for city, matched case-insensitively.
func (s *Store) Price(ctx context.Context, city string) (string, bool, error) {
	var price string
	err := s.db.QueryRowContext(ctx, `SELECT price FROM fares WHERE city = ?`, normalizeCity(city)).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query fare: %w", err)
	}
	return price, true, nil
}

// Set creates or replaces the fare for city.
func (s *Store) Set(ctx context.Context, city, price string) error {
	city = normalizeCity(city)
	price = strings.TrimSpace(price)
	if city == "" {
		return fmt.Errorf("set fare: empty city")
	}
	if price == "" {
		return fmt.Errorf("set fare %s: empty price", city)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fares (city, price, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(city) DO UPDATE SET price = excluded.price, updated_at = excluded.updated_at`,
		city, price, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set fare %s: %w", city, err)
	}
	return nil
}

// Delete removes the fare for city and reports whether one existed.
func (s *Store) Delete(ctx context.Context, city string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM fares WHERE city = ?`, normalizeCity(city))
	if err != nil {
		return false, fmt.Errorf("delete fare: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns every fare ordered by city.
func (s *Store) List(ctx context.Context) ([]Fare, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT city, price, updated_at FROM fares ORDER BY city`)
	if err != nil {
		return nil, fmt.Errorf("list fares: %w", err)
	}
	defer rows.Close()

	var fares []Fare
	for rows.Next() {
		var f Fare
		var updated string
		if err := rows.Scan(&f.City, &f.Price, &updated); err != nil {
			return nil, fmt.Errorf("scan fare: %w", err)
		}
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		fares = append(fares, f)
	}
	return fares, rows.Err()
}
