package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitializeDBSchema creates the tables the service needs. Safe to run on
// every startup.
func InitializeDBSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	_, err = db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	start_date TIMESTAMP WITH TIME ZONE NOT NULL,
	end_date TIMESTAMP WITH TIME ZONE NOT NULL,
	total_tickets INTEGER NOT NULL CHECK (total_tickets > 0),
	available_tickets INTEGER NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	CHECK (available_tickets >= 0 AND available_tickets <= total_tickets)
);`)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	_, err = db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bookings (
	id BIGSERIAL PRIMARY KEY,
	reference UUID NOT NULL UNIQUE,
	user_id BIGINT NOT NULL REFERENCES users (id),
	event_id BIGINT NOT NULL REFERENCES events (id),
	number_of_tickets INTEGER NOT NULL CHECK (number_of_tickets > 0),
	status VARCHAR(16) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("create bookings table: %w", err)
	}

	_, err = db.Exec(ctx, `
CREATE INDEX IF NOT EXISTS bookings_waiting_idx
	ON bookings (event_id, created_at, id) WHERE status = 'waiting';`)
	if err != nil {
		return fmt.Errorf("create waiting index: %w", err)
	}

	_, err = db.Exec(ctx, `
CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id);`)
	if err != nil {
		return fmt.Errorf("create user index: %w", err)
	}
	return nil
}
