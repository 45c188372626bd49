// Package mirror replicates selected writes to a secondary, non-authoritative
// store. Mirroring is best effort: failures are logged and never retried.
package mirror

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/config"
	"github.com/sujalbistaa/confessions/internal/models"
)

// Mirror is the capability the API needs from a secondary store.
type Mirror interface {
	InsertConfession(ctx context.Context, c models.Confession) error
	UpdateLikes(ctx context.Context, c models.Confession) error
}

// Noop is used when no mirror is configured.
type Noop struct{}

func (Noop) InsertConfession(context.Context, models.Confession) error { return nil }
func (Noop) UpdateLikes(context.Context, models.Confession) error      { return nil }

// New picks the adapter selected by cfg. The returned closer releases the
// adapter's resources and is never nil. A mirror that cannot be reached at
// startup is logged and replaced by Noop; the primary store never depends on
// it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (Mirror, io.Closer) {
	switch cfg.MirrorKind() {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Mirror.Timeout)
		defer cancel()
		pg, err := NewPostgres(connectCtx, cfg.Mirror.DatabaseURL)
		if err != nil {
			log.Warn("postgres mirror unavailable, mirroring disabled", zap.Error(err))
			return Noop{}, nopCloser{}
		}
		log.Info("mirror enabled", zap.String("kind", "postgres"))
		return pg, pg
	case "supabase":
		log.Info("mirror enabled", zap.String("kind", "supabase"))
		return NewSupabase(cfg.Mirror.SupabaseURL, cfg.Mirror.SupabaseAnonKey), nopCloser{}
	default:
		log.Warn("mirror credentials missing, writes go to the primary store only")
		return Noop{}, nopCloser{}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
