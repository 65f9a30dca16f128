package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nflpred/pipeline/internal/metrics"
	"nflpred/pipeline/internal/models"
	"nflpred/pipeline/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Refresher refreshes materialized views after a sync run. The concurrent
// path is tried first so readers are never blocked; any failure there
// (missing unique index on the view, conflicting refresh in flight) falls
// back to a blocking refresh of the same view.
type Refresher struct {
	db     *repository.Database
	schema string
}

// NewRefresher creates a refresher for views in the given namespace
func NewRefresher(db *repository.Database, schema string) *Refresher {
	return &Refresher{db: db, schema: schema}
}

// Refresh refreshes one view, concurrently when possible. The view is
// consistent and complete on success whichever path ran.
func (r *Refresher) Refresh(ctx context.Context, view string) (*models.RefreshReport, error) {
	start := time.Now()
	qualified := pgx.Identifier{r.schema, view}.Sanitize()

	concurrent := func() error {
		_, err := r.db.Pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+qualified)
		// feature_not_supported (no unique index, unpopulated view) and
		// undefined_table cannot heal on retry; fall back right away.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "0A000" || pgErr.Code == "42P01") {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 20 * time.Second

	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Str("view", view).Dur("retry_in", next).
			Msg("Concurrent refresh failed, retrying")
	}

	if err := backoff.RetryNotify(concurrent, backoff.WithContext(b, ctx), notify); err == nil {
		report := &models.RefreshReport{View: view, Mode: "concurrent", Duration: time.Since(start)}
		metrics.RefreshTotal.WithLabelValues(view, "concurrent", "ok").Inc()
		log.Info().Str("view", view).Dur("duration", report.Duration).Msg("View refreshed concurrently")
		return report, nil
	}

	log.Warn().Str("view", view).Msg("Falling back to blocking refresh")

	if _, err := r.db.Pool.Exec(ctx, "REFRESH MATERIALIZED VIEW "+qualified); err != nil {
		metrics.RefreshTotal.WithLabelValues(view, "blocking", "error").Inc()
		return nil, fmt.Errorf("blocking refresh failed for %s: %w", view, err)
	}

	report := &models.RefreshReport{View: view, Mode: "blocking", Duration: time.Since(start)}
	metrics.RefreshTotal.WithLabelValues(view, "blocking", "ok").Inc()
	log.Info().Str("view", view).Dur("duration", report.Duration).Msg("View refreshed (blocking)")
	return report, nil
}
