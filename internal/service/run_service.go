package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/engine"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/internal/repository"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
	"github.com/univ-lab/timetable-api/pkg/jobs"
)

type runStore interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
	Update(ctx context.Context, id string, params repository.UpdateRunParams) error
	List(ctx context.Context, filter models.RunFilter) ([]models.TimetableRun, int, error)
	ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error)
	Delete(ctx context.Context, id string) error
	DB() *sqlx.DB
}

type assignmentReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.AssignmentDetail, error)
}

type unassignedReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.UnassignedDetail, error)
}

type runConfigResolver interface {
	ResolveForRun(ctx context.Context, params models.RunParams) (engine.Config, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// RunService owns the timetable run lifecycle: creation, queueing, reads
// of persisted results and recovery after restarts.
type RunService struct {
	repo        runStore
	assignments assignmentReader
	unassigned  unassignedReader
	config      runConfigResolver
	queue       jobDispatcher
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRunService constructs a RunService.
func NewRunService(repo runStore, assignments assignmentReader, unassigned unassignedReader, config runConfigResolver, queue jobDispatcher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunService{
		repo:        repo,
		assignments: assignments,
		unassigned:  unassigned,
		config:      config,
		queue:       queue,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// CreateRun persists a queued run and hands it to the worker queue. The
// effective configuration is resolved once up front so broken settings
// surface here instead of failing the run later.
func (s *RunService) CreateRun(ctx context.Context, req dto.CreateRunRequest, actor *models.JWTClaims) (*dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload")
	}

	params := models.RunParams{
		MaxIterations:      req.MaxIterations,
		SampleSize:         req.SampleSize,
		InitialTemperature: req.InitialTemperature,
		CoolingRate:        req.CoolingRate,
		MinTemperature:     req.MinTemperature,
	}
	if _, err := s.config.ResolveForRun(ctx, params); err != nil {
		return nil, err
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	run := &models.TimetableRun{
		Status: models.RunStatusQueued,
		Seed:   seed,
		Params: params,
	}
	if actor != nil {
		run.CreatedBy = actor.ClientID
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: "timetable_run"}); err != nil {
		failed := models.RunStatusFailed
		msg := "failed to enqueue run"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, run.ID, repository.UpdateRunParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue timetable run")
	}
	resp := runToResponse(run)
	return &resp, nil
}

// GetRun returns run metadata including parameters, stats and the
// configuration snapshot the worker used.
func (s *RunService) GetRun(ctx context.Context, id string) (*dto.RunDetailResponse, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	detail := &dto.RunDetailResponse{
		RunResponse: runToResponse(run),
		Params:      run.Params,
	}
	if len(run.Stats) > 0 {
		detail.Stats = json.RawMessage(run.Stats)
	}
	if len(run.ConfigSnapshot) > 0 {
		detail.ConfigSnapshot = json.RawMessage(run.ConfigSnapshot)
	}
	return detail, nil
}

// ListRuns returns runs plus pagination data.
func (s *RunService) ListRuns(ctx context.Context, filter models.RunFilter) ([]dto.RunResponse, *models.Pagination, error) {
	runs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	responses := lo.Map(runs, func(run models.TimetableRun, _ int) dto.RunResponse {
		return runToResponse(&run)
	})
	return responses, pagination, nil
}

// Assignments returns the stored placements of a finished run. Results are
// immutable once the run finished, so they are served from cache when
// possible; the second return value reports whether the cache was hit.
func (s *RunService) Assignments(ctx context.Context, runID string) ([]models.AssignmentDetail, bool, error) {
	if _, err := s.requireFinished(ctx, runID); err != nil {
		return nil, false, err
	}

	key := runCacheKey(runID, "assignments")
	var cached []models.AssignmentDetail
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	rows, err := s.assignments.ListByRun(ctx, runID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	_ = s.cache.Set(ctx, key, rows, 0)
	return rows, false, nil
}

// Unassigned returns the sections a finished run could not place.
func (s *RunService) Unassigned(ctx context.Context, runID string) ([]models.UnassignedDetail, bool, error) {
	if _, err := s.requireFinished(ctx, runID); err != nil {
		return nil, false, err
	}

	key := runCacheKey(runID, "unassigned")
	var cached []models.UnassignedDetail
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	rows, err := s.unassigned.ListByRun(ctx, runID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unassigned sections")
	}
	_ = s.cache.Set(ctx, key, rows, 0)
	return rows, false, nil
}

// DeleteRun removes a run and its stored results. Runs currently executing
// cannot be deleted.
func (s *RunService) DeleteRun(ctx context.Context, id string) error {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	if run.Status == models.RunStatusRunning {
		return appErrors.Clone(appErrors.ErrConflict, "run is still executing")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable run")
	}
	_ = s.cache.Invalidate(ctx, runCacheKey(id, "*"))
	return nil
}

// RecoverPendingRuns re-enqueues runs left QUEUED by a previous process,
// called once on startup.
func (s *RunService) RecoverPendingRuns(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued runs", "error", err)
		return
	}
	for _, run := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: "timetable_run"}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending run", "run_id", run.ID, "error", err)
		}
	}
}

func (s *RunService) requireFinished(ctx context.Context, runID string) (*models.TimetableRun, error) {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	if run.Status != models.RunStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrRunNotReady, fmt.Sprintf("run is %s", run.Status))
	}
	return run, nil
}

func runCacheKey(runID, suffix string) string {
	return fmt.Sprintf("runs:%s:%s", runID, suffix)
}

func runToResponse(run *models.TimetableRun) dto.RunResponse {
	return dto.RunResponse{
		ID:              run.ID,
		Status:          run.Status,
		Seed:            run.Seed,
		AssignedCount:   run.AssignedCount,
		UnassignedCount: run.UnassignedCount,
		CreatedAt:       run.CreatedAt,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Error:           run.ErrorMessage,
	}
}

type schedulingSectionLister interface {
	ListForScheduling(ctx context.Context) ([]models.SchedulingSection, error)
}

type schedulingRoomLister interface {
	ListAll(ctx context.Context) ([]models.Room, error)
}

type schedulingAvailabilityLister interface {
	ListAll(ctx context.Context) ([]models.AvailabilitySlot, error)
}

type resultWriter interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.TimetableAssignment) error
	DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error
}

type unassignedWriter interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.UnassignedSection) error
	DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error
}

// RunWorker executes queued scheduling runs: it loads the catalog, runs
// the engine, verifies the result and persists it in one transaction.
type RunWorker struct {
	runs         runStore
	sections     schedulingSectionLister
	rooms        schedulingRoomLister
	availability schedulingAvailabilityLister
	config       runConfigResolver
	assignments  resultWriter
	unassigned   unassignedWriter
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	maxRetries   int
}

// NewRunWorker constructs a worker.
func NewRunWorker(runs runStore, sections schedulingSectionLister, rooms schedulingRoomLister, availability schedulingAvailabilityLister, config runConfigResolver, assignments resultWriter, unassigned unassignedWriter, cache *CacheService, metrics *MetricsService, maxRetries int, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RunWorker{
		runs:         runs,
		sections:     sections,
		rooms:        rooms,
		availability: availability,
		config:       config,
		assignments:  assignments,
		unassigned:   unassigned,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		maxRetries:   maxRetries,
	}
}

// Handle processes one queued run.
func (w *RunWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.runs.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted while waiting in the queue.
			w.logger.Sugar().Infow("skipping vanished run", "run_id", job.ID)
			return nil
		}
		return err
	}
	if record.Status != models.RunStatusQueued && record.Status != models.RunStatusRunning {
		w.logger.Sugar().Infow("skipping settled run", "run_id", job.ID, "status", record.Status)
		return nil
	}

	started := time.Now().UTC()
	running := models.RunStatusRunning
	if err := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{Status: &running, StartedAt: &started}); err != nil {
		return err
	}

	if err := w.execute(ctx, record); err != nil {
		w.recordOutcome(models.RunStatusFailed, started)
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.RunStatusFailed
			now := time.Now().UTC()
			if updateErr := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
				Status:       &failed,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark run failed", "run_id", job.ID, "error", updateErr)
			}
		} else {
			queued := models.RunStatusQueued
			if updateErr := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to requeue run", "run_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	w.recordOutcome(models.RunStatusFinished, started)
	return nil
}

func (w *RunWorker) execute(ctx context.Context, record *models.TimetableRun) error {
	cfg, err := w.config.ResolveForRun(ctx, record.Params)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}

	inputs, err := w.loadInputs(ctx)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(record.Seed))
	eng, err := engine.New(inputs, cfg, rng)
	if err != nil {
		return err
	}
	result, err := eng.Run()
	if err != nil {
		return err
	}
	if err := engine.Verify(eng.Grid(), inputs.Sections, inputs.Rooms, result); err != nil {
		return fmt.Errorf("result verification: %w", err)
	}

	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	if err := w.persistResult(ctx, record.ID, result); err != nil {
		return err
	}

	finished := models.RunStatusFinished
	now := time.Now().UTC()
	snapshotJSON := types.JSONText(snapshot)
	statsJSON := types.JSONText(stats)
	assigned := result.Stats.AssignedCount
	unassigned := result.Stats.UnassignedCount
	empty := ""
	if err := w.runs.Update(ctx, record.ID, repository.UpdateRunParams{
		Status:          &finished,
		ConfigSnapshot:  &snapshotJSON,
		Stats:           &statsJSON,
		AssignedCount:   &assigned,
		UnassignedCount: &unassigned,
		FinishedAt:      &now,
		ErrorMessage:    &empty,
	}); err != nil {
		return err
	}

	_ = w.cache.Invalidate(ctx, runCacheKey(record.ID, "*"))
	if w.metrics != nil {
		w.metrics.ObserveRunQuality(result.Stats.AssignmentRate)
	}

	w.logger.Sugar().Infow("timetable run finished",
		"run_id", record.ID,
		"assigned", assigned,
		"unassigned", unassigned,
		"iterations", result.Stats.Iterations,
		"elapsed_ms", result.Stats.ElapsedMS,
	)
	return nil
}

// loadInputs assembles the engine input collections from the catalog.
func (w *RunWorker) loadInputs(ctx context.Context) (engine.Inputs, error) {
	sections, err := w.sections.ListForScheduling(ctx)
	if err != nil {
		return engine.Inputs{}, fmt.Errorf("load sections: %w", err)
	}
	rooms, err := w.rooms.ListAll(ctx)
	if err != nil {
		return engine.Inputs{}, fmt.Errorf("load rooms: %w", err)
	}
	availability, err := w.availability.ListAll(ctx)
	if err != nil {
		return engine.Inputs{}, fmt.Errorf("load availability: %w", err)
	}

	inputs := engine.Inputs{
		Sections: lo.Map(sections, func(s models.SchedulingSection, _ int) engine.Section {
			return engine.Section{
				ID:           s.ID,
				ProfessorID:  s.ProfessorID,
				ClassGroupID: s.ClassGroupID,
				RoomCategory: engine.RoomCategory{
					Type:          s.RoomType,
					KnowledgeArea: s.KnowledgeArea,
				},
				Duration:      s.Duration,
				Regime:        engine.Regime(s.Regime),
				PriorityClass: s.PriorityClass,
				Active:        true,
			}
		}),
		Rooms: lo.Map(rooms, func(r models.Room, _ int) engine.Room {
			return engine.Room{
				ID: r.ID,
				Category: engine.RoomCategory{
					Type:          r.Type,
					KnowledgeArea: r.KnowledgeArea,
				},
			}
		}),
		Availability: lo.Map(availability, func(slot models.AvailabilitySlot, _ int) engine.AvailabilitySlot {
			return engine.AvailabilitySlot{
				ProfessorID: slot.ProfessorID,
				Day:         slot.Day,
				Period:      slot.Period,
				Weight:      slot.Weight,
			}
		}),
	}
	return inputs, nil
}

// persistResult replaces the stored result rows of the run in one
// transaction. Retried runs overwrite whatever a previous attempt wrote.
func (w *RunWorker) persistResult(ctx context.Context, runID string, result *engine.Result) error {
	tx, err := w.runs.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}

	if err := w.assignments.DeleteByRun(ctx, tx, runID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := w.unassigned.DeleteByRun(ctx, tx, runID); err != nil {
		_ = tx.Rollback()
		return err
	}

	assignments := lo.Map(result.Assignments, func(a engine.Assignment, _ int) models.TimetableAssignment {
		return models.TimetableAssignment{
			RunID:       runID,
			SectionID:   a.SectionID,
			RoomID:      a.RoomID,
			Day:         a.Day,
			StartPeriod: a.Start,
			Duration:    a.Duration,
			Score:       a.Score,
		}
	})
	if err := w.assignments.InsertBatch(ctx, tx, assignments); err != nil {
		_ = tx.Rollback()
		return err
	}

	unassigned := lo.Map(result.Unassigned, func(u engine.Unassigned, _ int) models.UnassignedSection {
		return models.UnassignedSection{
			RunID:     runID,
			SectionID: u.SectionID,
			Reason:    models.UnassignedReason(u.Reason),
		}
	})
	if err := w.unassigned.InsertBatch(ctx, tx, unassigned); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result tx: %w", err)
	}
	return nil
}

func (w *RunWorker) recordOutcome(status models.RunStatus, started time.Time) {
	if w.metrics == nil {
		return
	}
	w.metrics.ObserveRunCompleted(string(status), time.Since(started))
}
