package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nflpred/pipeline/internal/cache"
	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/models"
	"nflpred/pipeline/internal/repository"
	"nflpred/pipeline/internal/schema"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// Orchestrator drives a full stage-to-production synchronization run: one
// plan+execute per declared table, then a refresh of every declared view.
// A run either promotes every table or is reported failed; there is no
// partial-success state.
type Orchestrator struct {
	db           *repository.Database
	introspector *schema.Introspector
	executor     *Executor
	refresher    *Refresher
	cache        *cache.RedisCache // optional, nil when Redis is down
	cfg          *config.Config
	syncMap      *config.SyncConfig
}

// NewOrchestrator wires the sync pipeline together
func NewOrchestrator(db *repository.Database, c *cache.RedisCache, cfg *config.Config, syncMap *config.SyncConfig) *Orchestrator {
	return &Orchestrator{
		db:           db,
		introspector: schema.NewIntrospector(db.Pool),
		executor:     NewExecutor(db),
		refresher:    NewRefresher(db, cfg.ProdSchema),
		cache:        c,
		cfg:          cfg,
		syncMap:      syncMap,
	}
}

// Sync runs the whole table map and refreshes views. All plans are built
// before the first write so configuration errors abort the run cleanly.
func (o *Orchestrator) Sync(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{StartedAt: time.Now()}

	log.Info().
		Int("tables", len(o.syncMap.Tables)).
		Str("stage", o.cfg.StageSchema).
		Str("prod", o.cfg.ProdSchema).
		Int("parallelism", o.cfg.SyncParallelism).
		Msg("Sync run starting")

	plans, err := o.buildPlans(ctx)
	if err != nil {
		return o.finish(ctx, report, err)
	}

	var tables []models.TableReport
	if o.cfg.SyncParallelism > 1 {
		tables, err = o.runParallel(ctx, plans)
	} else {
		tables, err = o.runSequential(ctx, plans)
	}
	report.Tables = tables
	if err != nil {
		return o.finish(ctx, report, err)
	}

	for _, view := range o.syncMap.Views {
		rr, err := o.refresher.Refresh(ctx, view)
		if err != nil {
			return o.finish(ctx, report, err)
		}
		report.Refreshes = append(report.Refreshes, *rr)
	}

	return o.finish(ctx, report, nil)
}

// buildPlans introspects every destination table and validates declared keys
// up front, before any write happens.
func (o *Orchestrator) buildPlans(ctx context.Context) ([]*Plan, error) {
	plans := make([]*Plan, 0, len(o.syncMap.Tables))
	for _, t := range o.syncMap.Tables {
		ts, err := o.lookupSchema(ctx, t.Table)
		if err != nil {
			return nil, err
		}

		plan, err := BuildPlan(ts, t.KeyColumns, o.cfg.StageSchema, o.cfg.ProdSchema, t.Filter)
		if err != nil {
			return nil, err
		}

		log.Debug().
			Str("table", t.Table).
			Str("strategy", string(plan.Strategy)).
			Strs("key", t.KeyColumns).
			Msg("Plan built")
		plans = append(plans, plan)
	}
	return plans, nil
}

// lookupSchema consults the Redis schema cache before hitting the catalog
func (o *Orchestrator) lookupSchema(ctx context.Context, table string) (*schema.TableSchema, error) {
	if o.cache != nil {
		if ts, ok := o.cache.GetTableSchema(ctx, o.cfg.ProdSchema, table); ok {
			return ts, nil
		}
	}

	ts, err := o.introspector.TableSchema(ctx, o.cfg.ProdSchema, table)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.SetTableSchema(ctx, ts, time.Duration(o.cfg.CacheTTLSchema)*time.Second)
	}
	return ts, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, plans []*Plan) ([]models.TableReport, error) {
	reports := make([]models.TableReport, 0, len(plans))
	for _, plan := range plans {
		tr, err := o.executor.Run(ctx, plan)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *tr)
	}
	return reports, nil
}

// runParallel promotes independent tables concurrently. Destination tables
// are disjoint and each task acquires its own pooled connection, so
// transactions never interleave.
func (o *Orchestrator) runParallel(ctx context.Context, plans []*Plan) ([]models.TableReport, error) {
	pool, err := ants.NewPool(o.cfg.SyncParallelism)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		workers  sync.WaitGroup
		reports  = make([]models.TableReport, 0, len(plans))
		firstErr error
	)

	for _, plan := range plans {
		plan := plan
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			tr, runErr := o.executor.Run(ctx, plan)

			mu.Lock()
			defer mu.Unlock()
			if runErr != nil {
				if firstErr == nil {
					firstErr = runErr
				}
				return
			}
			reports = append(reports, *tr)
		}); err != nil {
			workers.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit sync task for %s: %w", plan.Table, err)
			}
			mu.Unlock()
		}
	}

	workers.Wait()
	return reports, firstErr
}

// finish stamps the report, logs the outcome, and publishes run status to
// Redis for the dashboard. Publishing is best-effort.
func (o *Orchestrator) finish(ctx context.Context, report *models.RunReport, err error) (*models.RunReport, error) {
	report.FinishedAt = time.Now()
	report.Succeeded = err == nil
	if err != nil {
		report.Error = err.Error()
	}

	if o.cache != nil {
		o.cache.SetRunReport(ctx, report, time.Duration(o.cfg.CacheTTLRunReport)*time.Second)
	}

	if err != nil {
		log.Error().Err(err).
			Int("tables_done", len(report.Tables)).
			Msg("Sync run failed")
		return report, err
	}

	log.Info().
		Int("tables", len(report.Tables)).
		Int64("rows_written", report.TotalWritten()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Sync run complete")
	return report, nil
}
