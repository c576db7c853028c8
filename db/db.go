package db

import (
	"context"
	"fmt"

	"eventflex_back_end_go/config"

	"github.com/jackc/pgx/v4/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id uuid PRIMARY KEY,
		participant_low TEXT NOT NULL,
		participant_high TEXT NOT NULL,
		latest_message_id uuid,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT conversations_pair_distinct CHECK (participant_low < participant_high),
		CONSTRAINT conversations_pair_unique UNIQUE (participant_low, participant_high)
	)`,

	`CREATE INDEX IF NOT EXISTS conversations_high_idx ON conversations (participant_high)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id uuid PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		conversation_id uuid NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		client_message_id TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS messages_conversation_order_idx ON messages (conversation_id, created_at, seq)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS messages_client_id_idx
		ON messages (conversation_id, sender_id, client_message_id)
		WHERE client_message_id IS NOT NULL`,
}

// InitDatabase connects the pool and makes sure the messaging schema exists.
func InitDatabase(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DatabaseMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DatabaseMaxConns)
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, query := range schema {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
