package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/domain"
	"stripe-fire-sync/internal/metrics"
	"stripe-fire-sync/internal/reconcile"
	"stripe-fire-sync/internal/repository/document"
	"stripe-fire-sync/internal/repository/lock"
	"stripe-fire-sync/internal/repository/run"
)

const (
	PhaseConfig = "config"
	PhaseLock   = "lock"
	PhaseLoad   = "load"
	PhaseDerive = "derive"
	PhaseApply  = "apply"
	PhaseCommit = "commit"
)

// PhaseError wraps the error that aborted a pass with the phase it failed in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// CleanupFailure is a dangling price the pass could not retire.
type CleanupFailure struct {
	PriceID   string `json:"priceId"`
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

// Report is the outcome of one pass. Created and Updated count provider
// mutations that succeeded, even when a later failure discarded their write-backs.
type Report struct {
	RunID           string           `json:"runId"`
	Collection      string           `json:"collection"`
	Variant         string           `json:"variant"`
	DryRun          bool             `json:"dryRun"`
	Created         int              `json:"created"`
	Updated         int              `json:"updated"`
	Unchanged       int              `json:"unchanged"`
	Skipped         int              `json:"skipped"`
	Stale           int              `json:"stale"`
	Cleared         int              `json:"cleared"`
	Deactivated     int              `json:"deactivated"`
	CleanupFailures []CleanupFailure `json:"cleanupFailures"`
	Plan            *reconcile.Plan  `json:"plan,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
}

// Deps are the optional collaborators of a Service.
type Deps struct {
	// Locker defaults to an in-process lock.
	Locker lock.Locker
	// Runs is where non-dry passes are recorded; nil keeps no history.
	Runs    run.Repository
	Metrics *metrics.Sync
	Logger  *log.Logger
}

type Service struct {
	store   document.Repository
	engine  *reconcile.Engine
	locker  lock.Locker
	runs    run.Repository
	metrics *metrics.Sync
	logger  *log.Logger
	now     func() time.Time
}

func New(store document.Repository, engine *reconcile.Engine, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	return &Service{
		store:   store,
		engine:  engine,
		locker:  deps.Locker,
		runs:    deps.Runs,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one reconciliation pass for job. The returned report is non-nil
// whenever the job itself was valid, including on failure.
func (s *Service) Run(ctx context.Context, job config.Job) (*Report, error) {
	job, err := job.Normalize()
	if err != nil {
		return nil, &PhaseError{Phase: PhaseConfig, Err: err}
	}
	deriver, err := reconcile.DeriverFor(job)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseConfig, Err: err}
	}

	report := &Report{
		RunID:           uuid.NewString(),
		Collection:      job.Collection,
		Variant:         job.Variant,
		DryRun:          job.DryRun,
		CleanupFailures: []CleanupFailure{},
		StartedAt:       s.now(),
	}

	release, err := s.locker.Acquire(ctx, job.Collection)
	if err != nil {
		report.FinishedAt = s.now()
		s.logger.Printf("sync: lock collection=%s run=%s error=%v", job.Collection, report.RunID, err)
		return report, &PhaseError{Phase: PhaseLock, Err: err}
	}
	defer release()

	s.logger.Printf("sync: start collection=%s variant=%s run=%s dry_run=%t", job.Collection, job.Variant, report.RunID, job.DryRun)

	var (
		docs  []domain.Document
		index reconcile.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.store.ListAll(gctx, job.Collection)
		if err != nil {
			return fmt.Errorf("list %s: %w", job.Collection, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		index, err = s.engine.BuildIndex(gctx, job.Collection)
		return err
	})
	if err := g.Wait(); err != nil {
		return report, s.finish(ctx, report, PhaseLoad, err)
	}

	products, err := reconcile.SourceProducts(docs, deriver, job.RefKey)
	if err != nil {
		return report, s.finish(ctx, report, PhaseDerive, err)
	}
	plan, err := reconcile.Diff(products, index)
	if err != nil {
		return report, s.finish(ctx, report, PhaseDerive, err)
	}
	report.Unchanged = plan.Unchanged
	report.Skipped = plan.Skipped
	report.Stale = plan.Stale

	if job.DryRun {
		report.Plan = &plan
		report.FinishedAt = s.now()
		s.logger.Printf("sync: planned collection=%s run=%s create=%d update=%d dangling=%d unchanged=%d skipped=%d",
			job.Collection, report.RunID, plan.Count(reconcile.OpCreateProduct), plan.Count(reconcile.OpUpdatePrice),
			len(plan.Dangling), plan.Unchanged, plan.Skipped)
		return report, nil
	}

	res, err := s.engine.Apply(ctx, report.RunID, job.Collection, plan)
	report.Created = res.Created
	report.Updated = res.Updated
	if err != nil {
		return report, s.finish(ctx, report, PhaseApply, err)
	}

	batch := s.store.BeginBatch(job.Collection)
	for _, wb := range res.WriteBacks {
		batch.Update(wb.ID, wb.Version, map[string]interface{}{job.RefKey: wb.ExternalRef})
	}
	for _, c := range plan.Clear {
		batch.DeleteField(c.DocumentID, c.Version, job.RefKey)
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return report, s.finish(ctx, report, PhaseCommit, fmt.Errorf("commit %d write-backs: %w", batch.Len(), err))
		}
		report.Cleared = len(plan.Clear)
	}

	cleanup := s.engine.Cleanup(ctx, job.Collection, plan.Dangling)
	report.Deactivated = cleanup.Deactivated
	for _, f := range cleanup.Failures {
		report.CleanupFailures = append(report.CleanupFailures, CleanupFailure{
			PriceID:   f.PriceID,
			ProductID: f.ProductID,
			Error:     f.Err.Error(),
		})
	}
	return report, s.finish(ctx, report, "", nil)
}

func (s *Service) finish(ctx context.Context, report *Report, phase string, err error) error {
	report.FinishedAt = s.now()
	status := domain.RunStatusSucceeded
	if err != nil {
		status = domain.RunStatusFailed
		err = &PhaseError{Phase: phase, Err: err}
	}

	if !report.DryRun {
		s.metrics.ObservePass(report.Collection, status, report.StartedAt, report.FinishedAt)
		s.record(ctx, report, status, phase, err)
	}

	if err != nil {
		s.logger.Printf("sync: failed collection=%s run=%s phase=%s created=%d updated=%d error=%v",
			report.Collection, report.RunID, phase, report.Created, report.Updated, err)
		return err
	}
	s.logger.Printf("sync: done collection=%s run=%s created=%d updated=%d unchanged=%d skipped=%d stale=%d cleared=%d deactivated=%d cleanup_failures=%d",
		report.Collection, report.RunID, report.Created, report.Updated, report.Unchanged, report.Skipped,
		report.Stale, report.Cleared, report.Deactivated, len(report.CleanupFailures))
	return nil
}

func (s *Service) record(ctx context.Context, report *Report, status, phase string, err error) {
	if s.runs == nil {
		return
	}
	r := domain.SyncRun{
		ID:              report.RunID,
		Collection:      report.Collection,
		Variant:         report.Variant,
		Status:          status,
		FailedPhase:     phase,
		Created:         report.Created,
		Updated:         report.Updated,
		Unchanged:       report.Unchanged,
		Skipped:         report.Skipped,
		Stale:           report.Stale,
		Deactivated:     report.Deactivated,
		CleanupFailures: len(report.CleanupFailures),
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	}
	if err != nil {
		r.Error = err.Error()
	}
	// A cancelled pass is still recorded.
	if rerr := s.runs.Record(context.WithoutCancel(ctx), r); rerr != nil {
		s.logger.Printf("sync: record run=%s error=%v", report.RunID, rerr)
	}
}

// Purge clears the reference field on every document of collection in one batch.
// It returns the number of documents that carried a reference.
func (s *Service) Purge(ctx context.Context, collection, refKey string) (int, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return 0, &PhaseError{Phase: PhaseConfig, Err: fmt.Errorf("collection required")}
	}
	if refKey == "" {
		refKey = config.DefaultRefKey
	}

	release, err := s.locker.Acquire(ctx, collection)
	if err != nil {
		return 0, &PhaseError{Phase: PhaseLock, Err: err}
	}
	defer release()

	docs, err := s.store.ListAll(ctx, collection)
	if err != nil {
		return 0, &PhaseError{Phase: PhaseLoad, Err: fmt.Errorf("list %s: %w", collection, err)}
	}
	batch := s.store.BeginBatch(collection)
	for _, d := range docs {
		if _, ok := d.Fields[refKey]; ok {
			batch.DeleteField(d.ID, 0, refKey)
		}
	}
	if batch.Len() == 0 {
		s.logger.Printf("sync: purge collection=%s field=%s cleared=0", collection, refKey)
		return 0, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, &PhaseError{Phase: PhaseCommit, Err: err}
	}
	s.logger.Printf("sync: purge collection=%s field=%s cleared=%d", collection, refKey, batch.Len())
	return batch.Len(), nil
}

// Runs lists the latest recorded passes for collection.
func (s *Service) Runs(ctx context.Context, collection string, limit int) ([]domain.SyncRun, error) {
	if s.runs == nil {
		return []domain.SyncRun{}, nil
	}
	return s.runs.ListRecent(ctx, collection, limit)
}
