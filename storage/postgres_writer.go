package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"olx-price-pipeline/models"
)

// PostgresWriter persists cleaned car listings to PostgreSQL. Option flags
// are not flattened into columns; the relational sink keeps the fixed typed
// fields and the CSV artifact remains the source of truth for features.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS car_listings (
			id           SERIAL PRIMARY KEY,
			url          TEXT UNIQUE NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			price        NUMERIC(12,2) NOT NULL,
			year         INTEGER NOT NULL,
			mileage      NUMERIC(12,1),
			engine_size  NUMERIC(4,1),
			doors        INTEGER,
			brand        TEXT,
			model        TEXT,
			fuel         TEXT,
			transmission TEXT,
			color        TEXT,
			state        CHAR(2) NOT NULL,
			city         TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_car_listings_price ON car_listings(price);
		CREATE INDEX IF NOT EXISTS idx_car_listings_state ON car_listings(state);
		CREATE INDEX IF NOT EXISTS idx_car_listings_brand ON car_listings(brand);
		CREATE INDEX IF NOT EXISTS idx_car_listings_year  ON car_listings(year);
	`)
	return err
}

// Clear deletes all existing listings. The sink is truncate-and-load: every
// ETL run replaces the previous snapshot.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM car_listings")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write batch-inserts all cleaned listings, clearing old data first.
func (pw *PostgresWriter) Write(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	if err := pw.Clear(); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.Listing) error {
	const cols = 15
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, l := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.URL, l.Title, l.Price, l.Year, l.Mileage, l.EngineSize, l.Doors,
			l.Brand, l.Model, l.Fuel, l.Transmission, l.Color, l.State, l.City,
			time.Now())
	}

	query := fmt.Sprintf(`
		INSERT INTO car_listings (url, title, price, year, mileage, engine_size,
			doors, brand, model, fuel, transmission, color, state, city, created_at)
		VALUES %s
		ON CONFLICT (url) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

// Close closes the database connection.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
