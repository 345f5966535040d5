package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	inventory "compliance-monitor"
	"compliance-monitor/internal/bus"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/storage"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrQueueFull     = errors.New("refresh queue full")
)

// Store persists captured snapshots and run history.
type Store interface {
	InsertSnapshot(ctx context.Context, snap storage.Snapshot) error
	RecordRefreshRun(ctx context.Context, run storage.RefreshRun) error
}

type Publisher interface {
	Publish(subject string, payload any) error
}

type OpenFunc func(cfg inventory.ConnectionConfig) (inventory.Reader, error)

type Options struct {
	Workers    int
	JobTimeout time.Duration
	QueueSize  int
	// Open defaults to inventory.NewReader.
	Open    OpenFunc
	Metrics *metrics.Refresh
	Logger  *slog.Logger
}

type Registry struct {
	mu         sync.Mutex
	triggerMu  sync.Mutex
	jobs       map[string]*Job
	queue      chan JobRun
	store      Store
	publisher  Publisher
	open       OpenFunc
	metrics    *metrics.Refresh
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

type Job struct {
	source     Source
	stop       chan struct{}
	lastRun    time.Time
	lastStatus string
	lastError  string
}

type JobInfo struct {
	Source          string     `json:"source"`
	Type            string     `json:"type"`
	IntervalSeconds int        `json:"intervalSeconds"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	LastStatus      string     `json:"lastStatus,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

type JobRun struct {
	source  Source
	trigger string
}

func NewRegistry(store Store, publisher Publisher, opts Options) *Registry {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.Open == nil {
		opts.Open = inventory.NewReader
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	reg := &Registry{
		jobs:       map[string]*Job{},
		queue:      make(chan JobRun, opts.QueueSize),
		store:      store,
		publisher:  publisher,
		open:       opts.Open,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		jobTimeout: opts.JobTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		reg.wg.Add(1)
		go reg.worker()
	}
	return reg
}

// Stop cancels running refreshes and waits for the workers to exit.
func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, job := range r.jobs {
		close(job.stop)
	}
	r.jobs = map[string]*Job{}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) Schedule(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.jobs[source.Name]; ok {
		close(existing.stop)
	}
	job := &Job{source: source, stop: make(chan struct{})}
	r.jobs[source.Name] = job
	go r.runTicker(job)
}

func (r *Registry) Unschedule(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[name]; ok {
		close(job.stop)
		delete(r.jobs, name)
	}
}

// Reload makes the scheduled set match sources. Unchanged sources keep their ticker.
func (r *Registry) Reload(sources []Source) {
	wanted := map[string]Source{}
	for _, src := range sources {
		wanted[src.Name] = src
	}
	r.mu.Lock()
	var stale []string
	var changed []Source
	for name, job := range r.jobs {
		src, ok := wanted[name]
		if !ok {
			stale = append(stale, name)
			continue
		}
		if src != job.source {
			changed = append(changed, src)
		}
		delete(wanted, name)
	}
	r.mu.Unlock()
	for _, name := range stale {
		r.Unschedule(name)
	}
	for _, src := range changed {
		r.Schedule(src)
	}
	for _, src := range wanted {
		r.Schedule(src)
	}
}

func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]JobInfo, 0, len(r.jobs))
	for name, job := range r.jobs {
		info := JobInfo{
			Source:          name,
			Type:            job.source.Type,
			IntervalSeconds: job.source.IntervalSeconds,
			LastStatus:      job.lastStatus,
			LastError:       job.lastError,
		}
		if !job.lastRun.IsZero() {
			last := job.lastRun
			info.LastRunAt = &last
		}
		jobs = append(jobs, info)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Source < jobs[j].Source })
	return jobs
}

// Trigger queues an immediate refresh of one source, or of every scheduled
// source when name is empty. Nothing is queued when the queue cannot take
// every requested run.
func (r *Registry) Trigger(name string) error {
	r.mu.Lock()
	var runs []JobRun
	for jobName, job := range r.jobs {
		if name == "" || jobName == name {
			runs = append(runs, JobRun{source: job.source, trigger: TriggerManual})
		}
	}
	r.mu.Unlock()
	if len(runs) == 0 {
		if name == "" {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	r.triggerMu.Lock()
	defer r.triggerMu.Unlock()
	if free := cap(r.queue) - len(r.queue); free < len(runs) {
		return fmt.Errorf("%w: %d runs requested, %d slots free", ErrQueueFull, len(runs), free)
	}
	for i, run := range runs {
		select {
		case r.queue <- run:
		default:
			// a scheduled tick took the slot after the capacity check
			return fmt.Errorf("%w: queued %s, dropped %s", ErrQueueFull, sourceNames(runs[:i]), sourceNames(runs[i:]))
		}
	}
	return nil
}

func sourceNames(runs []JobRun) string {
	names := make([]string, len(runs))
	for i, run := range runs {
		names[i] = run.source.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func (r *Registry) runTicker(job *Job) {
	ticker := time.NewTicker(job.source.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case r.queue <- JobRun{source: job.source, trigger: TriggerSchedule}:
			case <-job.stop:
				return
			case <-r.ctx.Done():
				return
			}
		case <-job.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case run := <-r.queue:
			r.execute(run)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) execute(run JobRun) storage.RefreshRun {
	started := time.Now().UTC()
	rec := storage.RefreshRun{
		RunID:     uuid.NewString(),
		Source:    run.source.Name,
		Trigger:   run.trigger,
		StartedAt: started,
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.jobTimeout)
	defer cancel()

	snap, err := r.capture(ctx, run.source, started)
	if err == nil {
		err = r.store.InsertSnapshot(ctx, snap)
	}
	completed := time.Now().UTC()
	rec.CompletedAt = &completed
	if err != nil {
		rec.Status = storage.RunStatusFailed
		rec.ErrorMessage = err.Error()
		r.logger.Error("inventory refresh failed", slog.String("source", run.source.Name), slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
	} else {
		rec.Status = storage.RunStatusSucceeded
		rec.Warehouses = len(snap.Warehouses)
		rec.RetentionObjects = len(snap.RetentionObjects)
		rec.Tags = len(snap.Tags)
		r.logger.Info("inventory refreshed", slog.String("source", run.source.Name), slog.String("run_id", rec.RunID),
			slog.Int("warehouses", rec.Warehouses), slog.Int("retention_objects", rec.RetentionObjects), slog.Int("tags", rec.Tags))
	}

	// Run history is written even when the refresh context has expired.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recordCancel()
	if err := r.store.RecordRefreshRun(recordCtx, rec); err != nil {
		r.logger.Error("failed to record refresh run", slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(rec.Source, rec.Status, completed.Sub(started))
		if rec.Status == storage.RunStatusSucceeded {
			r.metrics.ObserveRows(rec.Source, rec.Warehouses, rec.RetentionObjects, rec.Tags)
		}
	}
	if r.publisher != nil {
		evt := bus.InventoryRefreshed{
			RunID:            rec.RunID,
			Source:           rec.Source,
			Status:           rec.Status,
			Warehouses:       rec.Warehouses,
			RetentionObjects: rec.RetentionObjects,
			Tags:             rec.Tags,
			Error:            rec.ErrorMessage,
			CompletedAt:      completed,
		}
		if err := r.publisher.Publish(bus.SubjectInventoryRefreshed, evt); err != nil {
			r.logger.Error("failed to publish refresh event", slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
		}
	}
	r.mu.Lock()
	if job, ok := r.jobs[run.source.Name]; ok {
		job.lastRun = completed
		job.lastStatus = rec.Status
		job.lastError = rec.ErrorMessage
	}
	r.mu.Unlock()
	return rec
}

func (r *Registry) capture(ctx context.Context, source Source, capturedAt time.Time) (storage.Snapshot, error) {
	reader, err := r.open(source.Connection())
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("open %s: %w", source.Name, err)
	}
	defer reader.Close()

	snap := storage.Snapshot{Source: source.Name, CapturedAt: capturedAt}
	if snap.Warehouses, err = reader.Warehouses(ctx); err != nil {
		return storage.Snapshot{}, fmt.Errorf("read warehouses: %w", err)
	}
	if snap.RetentionObjects, err = reader.RetentionObjects(ctx); err != nil {
		return storage.Snapshot{}, fmt.Errorf("read retention objects: %w", err)
	}
	if snap.Tags, err = reader.TagAssignments(ctx); err != nil {
		return storage.Snapshot{}, fmt.Errorf("read tags: %w", err)
	}
	return snap, nil
}
