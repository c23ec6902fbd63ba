// Package runner drives one complete scrape run: it fans configured
// target pages out over a bounded worker pool, pushes each page through
// fetch, parse, normalize, and upsert, isolates per-item failures, and
// aggregates run statistics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/archive"
	"github.com/shelfscan/shelfscan/internal/pipeline"
	"github.com/shelfscan/shelfscan/internal/progress"
)

// ParserResolver maps a target-type tag to its parser variant.
type ParserResolver func(targetType string) (pipeline.Parser, error)

// Config controls Runner behavior.
type Config struct {
	// Workers bounds concurrent page fetches. Kept low to respect
	// target site load.
	Workers int
}

// Runner executes runs. Construct once, invoke Run per trigger; each
// Run is independent and synchronous.
type Runner struct {
	fetcher    pipeline.Fetcher
	normalizer pipeline.Normalizer
	store      pipeline.Store
	resolver   ParserResolver
	archiver   archive.Archiver
	emitter    progress.Emitter
	clock      pipeline.Clock
	idGen      pipeline.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Runner.
func New(
	fetcher pipeline.Fetcher,
	normalizer pipeline.Normalizer,
	store pipeline.Store,
	resolver ParserResolver,
	archiver archive.Archiver,
	emitter progress.Emitter,
	clock pipeline.Clock,
	idGen pipeline.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if archiver == nil {
		archiver = archive.NoOp{}
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &Runner{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		resolver:   resolver,
		archiver:   archiver,
		emitter:    emitter,
		clock:      clock,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}
}

type pageJob struct {
	target pipeline.Target
	url    string
}

// runState tracks mutable run progress shared across workers.
type runState struct {
	mu       sync.Mutex
	stats    pipeline.RunStats
	abortErr error
	cancel   context.CancelFunc
}

func (s *runState) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortErr == nil {
		s.abortErr = err
		s.cancel()
	}
}

func (s *runState) countFailure(kind pipeline.FailureKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Attempted++
	s.stats.Failed[kind]++
}

func (s *runState) countOutcome(outcome pipeline.UpsertOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Attempted++
	s.stats.Succeeded++
	switch outcome {
	case pipeline.OutcomeCreated:
		s.stats.Created++
	case pipeline.OutcomeUpdated:
		s.stats.Updated++
	case pipeline.OutcomeUnchanged:
		s.stats.Unchanged++
	}
}

// Run processes every configured target once and returns finalized
// statistics. Per-item and per-page failures are absorbed into the
// statistics; only storage unavailability (or caller cancellation)
// aborts the run, and then the error is returned alongside the partial
// statistics.
func (r *Runner) Run(ctx context.Context, targets []pipeline.Target) (pipeline.RunStats, error) {
	runID, err := r.idGen.NewID()
	if err != nil {
		return pipeline.RunStats{State: pipeline.RunIdle}, fmt.Errorf("new run id: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &runState{
		stats: pipeline.RunStats{
			RunID:   runID,
			State:   pipeline.RunRunning,
			Failed:  make(map[pipeline.FailureKind]int),
			Started: r.clock.Now(),
		},
		cancel: cancel,
	}

	r.emitter.Emit(progress.Event{
		RunID: runID,
		TS:    state.stats.Started,
		Stage: progress.StageRunStart,
	})
	r.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("targets", len(targets)),
		zap.Int("workers", r.cfg.Workers),
	)

	jobs := make(chan pageJob)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r.processPage(runCtx, runID, job, state)
			}
		}()
	}

feed:
	for _, target := range targets {
		for _, url := range target.URLs {
			select {
			case jobs <- pageJob{target: target, url: url}:
			case <-runCtx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	return r.finalize(ctx, state)
}

func (r *Runner) finalize(ctx context.Context, state *runState) (pipeline.RunStats, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	stats := state.stats
	stats.Duration = r.clock.Now().Sub(stats.Started)

	abortErr := state.abortErr
	if abortErr == nil && ctx.Err() != nil {
		abortErr = fmt.Errorf("run canceled: %w", ctx.Err())
	}
	if abortErr != nil {
		stats.State = pipeline.RunAborted
		r.emitter.Emit(progress.Event{
			RunID: stats.RunID,
			TS:    r.clock.Now(),
			Stage: progress.StageRunError,
			Dur:   stats.Duration,
			Note:  abortErr.Error(),
		})
		r.logger.Error("run aborted", zap.String("run_id", stats.RunID), zap.Error(abortErr))
		return stats, fmt.Errorf("run %s aborted: %w", stats.RunID, abortErr)
	}

	stats.State = pipeline.RunCompleted
	r.emitter.Emit(progress.Event{
		RunID: stats.RunID,
		TS:    r.clock.Now(),
		Stage: progress.StageRunDone,
		Dur:   stats.Duration,
	})
	r.logger.Info("run completed",
		zap.String("run_id", stats.RunID),
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.TotalFailed()),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (r *Runner) processPage(ctx context.Context, runID string, job pageJob, state *runState) {
	if ctx.Err() != nil {
		return
	}

	res := r.fetcher.Fetch(ctx, job.url)
	r.emitter.Emit(progress.Event{
		RunID:       runID,
		TS:          r.clock.Now(),
		Stage:       progress.StagePageFetch,
		Target:      job.target.Name,
		URL:         job.url,
		FetchStatus: res.Status,
		Attempts:    res.Attempts,
		Dur:         res.Elapsed,
	})

	if res.Status != pipeline.FetchSuccess {
		kind := pipeline.FailFetchPermanent
		if res.Status == pipeline.FetchTransient {
			kind = pipeline.FailFetchTransient
		}
		state.countFailure(kind)
		r.emitFailure(runID, job, "", kind, res.Err)
		return
	}

	parser, err := r.resolver(job.target.Type)
	if err != nil {
		state.countFailure(pipeline.FailParse)
		r.emitFailure(runID, job, "", pipeline.FailParse, err)
		return
	}

	parseErr := parser.Parse(res.Body, job.url, func(raw pipeline.RawFieldSet) bool {
		if ctx.Err() != nil {
			return false
		}
		r.processItem(ctx, runID, job, raw, state)
		return ctx.Err() == nil
	})
	if parseErr != nil {
		state.countFailure(pipeline.FailParse)
		r.emitFailure(runID, job, "", pipeline.FailParse, parseErr)
		r.archiveSnapshot(ctx, job, res.Body)
	}
}

func (r *Runner) processItem(ctx context.Context, runID string, job pageJob, raw pipeline.RawFieldSet, state *runState) {
	rec, err := r.normalizer.Normalize(raw)
	if err != nil {
		kind, perItem := pipeline.ClassifyFailure(err)
		if !perItem {
			state.abort(err)
			return
		}
		state.countFailure(kind)
		r.emitFailure(runID, job, "", kind, err)
		return
	}

	outcome, err := r.store.Upsert(ctx, rec)
	if err != nil {
		// Any storage error means progress can no longer be safely
		// recorded.
		state.abort(err)
		return
	}

	state.countOutcome(outcome)
	r.emitter.Emit(progress.Event{
		RunID:   runID,
		TS:      r.clock.Now(),
		Stage:   progress.StageItemStored,
		Target:  job.target.Name,
		Key:     rec.Key,
		Outcome: outcome,
	})
}

func (r *Runner) emitFailure(runID string, job pageJob, key string, kind pipeline.FailureKind, cause error) {
	note := ""
	if cause != nil {
		note = cause.Error()
	}
	r.emitter.Emit(progress.Event{
		RunID:   runID,
		TS:      r.clock.Now(),
		Stage:   progress.StageItemFailed,
		Target:  job.target.Name,
		URL:     job.url,
		Key:     key,
		Failure: kind,
		Note:    note,
	})
	r.logger.Warn("item failed",
		zap.String("run_id", runID),
		zap.String("target", job.target.Name),
		zap.String("url", job.url),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
}

func (r *Runner) archiveSnapshot(ctx context.Context, job pageJob, body []byte) {
	uri, err := r.archiver.Save(ctx, job.target.Name, job.url, body)
	if err != nil {
		r.logger.Warn("snapshot archive failed",
			zap.String("target", job.target.Name),
			zap.String("url", job.url),
			zap.Error(err),
		)
		return
	}
	if uri != "" {
		r.logger.Info("archived unparseable page",
			zap.String("target", job.target.Name),
			zap.String("url", job.url),
			zap.String("snapshot", uri),
		)
	}
}

// IsAborted reports whether a Run error was a run-level abort rather
// than a setup failure.
func IsAborted(err error) bool {
	return err != nil && (errors.Is(err, pipeline.ErrStoreUnavailable) || errors.Is(err, context.Canceled))
}
