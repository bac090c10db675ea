package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// order_lines.seq and users.seq preserve insertion order for the cart and the
// admin report.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image       TEXT NOT NULL DEFAULT '',
		price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
		quantity    INTEGER NOT NULL CHECK (quantity >= 0),
		rating      DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		seq        BIGSERIAL,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		id            TEXT PRIMARY KEY,
		seq           BIGSERIAL,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id    TEXT NOT NULL,
		quantity      INTEGER NOT NULL CHECK (quantity > 0),
		status        TEXT NOT NULL,
		product_name  TEXT NOT NULL,
		product_price DOUBLE PRECISION NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_lines_user_idx ON order_lines(user_id, seq)`,
	`CREATE INDEX IF NOT EXISTS order_lines_product_idx ON order_lines(product_id)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id         TEXT PRIMARY KEY,
		seq        BIGSERIAL,
		user_id    TEXT NOT NULL,
		product_id TEXT NOT NULL,
		rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		review     TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, product_id)
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_product_idx ON reviews(product_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS queries (
		id         TEXT PRIMARY KEY,
		seq        BIGSERIAL,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		phone      TEXT NOT NULL,
		email      TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS queries_user_idx ON queries(user_id, seq DESC)`,
}

// Migrate creates the tables if they are missing. Safe to run on every boot.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
