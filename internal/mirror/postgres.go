package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sujalbistaa/confessions/internal/models"
)

// ErrNotMirrored is returned when a like update targets a confession the
// mirror never received.
var ErrNotMirrored = errors.New("confession not present in mirror")

// Postgres mirrors into a Postgres database keyed by the primary id.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mirror database: %w", err)
	}

	p := &Postgres{Pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Ensure Postgres implements Mirror
var _ Mirror = (*Postgres)(nil)

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS confession_mirror (
		id BIGINT PRIMARY KEY,
		confession TEXT NOT NULL,
		category TEXT NOT NULL,
		likes INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to init mirror schema: %w", err)
	}
	return nil
}

func (p *Postgres) InsertConfession(ctx context.Context, c models.Confession) error {
	_, err := p.Pool.Exec(ctx,
		`INSERT INTO confession_mirror (id, confession, category, likes, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET confession = EXCLUDED.confession, category = EXCLUDED.category`,
		int64(c.ID), c.Content, c.Category, c.Likes, c.CreatedAt)
	return err
}

// UpdateLikes never lowers the mirrored count, so updates delivered out of
// order cannot move it backwards.
func (p *Postgres) UpdateLikes(ctx context.Context, c models.Confession) error {
	tag, err := p.Pool.Exec(ctx,
		"UPDATE confession_mirror SET likes = GREATEST(likes, $2) WHERE id = $1",
		int64(c.ID), c.Likes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMirrored
	}
	return nil
}

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}
