package syncer

import (
	"context"
	"fmt"
	"time"

	"nflpred/pipeline/internal/metrics"
	"nflpred/pipeline/internal/models"
	"nflpred/pipeline/internal/repository"

	"github.com/rs/zerolog/log"
)

// Executor runs a resolved plan against the database
type Executor struct {
	db *repository.Database
}

// NewExecutor creates an executor bound to the database
func NewExecutor(db *repository.Database) *Executor {
	return &Executor{db: db}
}

// Run executes the plan's strategy and returns per-table row accounting.
// Staged rows are read, never deleted: the staging namespace is the audit
// trail of what was promoted.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*models.TableReport, error) {
	start := time.Now()

	report := &models.TableReport{
		Table:    plan.Table,
		Strategy: string(plan.Strategy),
	}

	if err := e.db.Pool.QueryRow(ctx, plan.StagedCountSQL()).Scan(&report.StagedRows); err != nil {
		return nil, fmt.Errorf("failed to count staged rows for %s: %w", plan.Table, err)
	}

	var err error
	switch plan.Strategy {
	case StrategyMerge:
		err = e.runMerge(ctx, plan, report)
	case StrategyInsertOnly:
		err = e.runInsertOnly(ctx, plan, report)
	case StrategyDeleteInsert:
		err = e.runDeleteInsert(ctx, plan, report)
	default:
		err = fmt.Errorf("unknown strategy %q for table %s", plan.Strategy, plan.Table)
	}

	if err != nil {
		metrics.SyncTablesTotal.WithLabelValues(plan.Table, string(plan.Strategy), "error").Inc()
		return nil, err
	}

	report.Duration = time.Since(start)
	metrics.SyncTablesTotal.WithLabelValues(plan.Table, string(plan.Strategy), "ok").Inc()
	metrics.SyncRowsTotal.WithLabelValues(plan.Table, "written").Add(float64(report.Written))
	metrics.SyncRowsTotal.WithLabelValues(plan.Table, "deleted").Add(float64(report.Deleted))
	metrics.SyncDuration.WithLabelValues(plan.Table).Observe(report.Duration.Seconds())

	// Advisory: planner statistics on the freshly written table. A failure
	// here never fails the sync.
	if _, err := e.db.Pool.Exec(ctx, plan.AnalyzeSQL()); err != nil {
		log.Warn().Err(err).Str("table", plan.Table).Msg("ANALYZE failed after sync")
	}

	log.Info().
		Str("table", plan.Table).
		Str("strategy", string(plan.Strategy)).
		Int64("staged", report.StagedRows).
		Int64("written", report.Written).
		Int64("deleted", report.Deleted).
		Dur("duration", report.Duration).
		Msg("Table synced")

	return report, nil
}

func (e *Executor) runMerge(ctx context.Context, plan *Plan, report *models.TableReport) error {
	tag, err := e.db.Pool.Exec(ctx, plan.MergeSQL())
	if err != nil {
		return fmt.Errorf("merge failed for %s: %w", plan.Table, err)
	}
	report.Written = tag.RowsAffected()
	return nil
}

func (e *Executor) runInsertOnly(ctx context.Context, plan *Plan, report *models.TableReport) error {
	tag, err := e.db.Pool.Exec(ctx, plan.InsertOnlySQL())
	if err != nil {
		return fmt.Errorf("insert failed for %s: %w", plan.Table, err)
	}
	report.Written = tag.RowsAffected()
	return nil
}

// runDeleteInsert replaces matching key tuples atomically. A failure at any
// point rolls back both statements: a partial replace is never observable.
func (e *Executor) runDeleteInsert(ctx context.Context, plan *Plan, report *models.TableReport) error {
	tx, err := e.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", plan.Table, err)
	}
	defer tx.Rollback(ctx)

	delTag, err := tx.Exec(ctx, plan.DeleteSQL())
	if err != nil {
		return fmt.Errorf("delete failed for %s: %w", plan.Table, err)
	}

	insTag, err := tx.Exec(ctx, plan.InsertSQL())
	if err != nil {
		return fmt.Errorf("insert failed for %s: %w", plan.Table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed for %s: %w", plan.Table, err)
	}

	report.Deleted = delTag.RowsAffected()
	report.Written = insTag.RowsAffected()
	return nil
}
