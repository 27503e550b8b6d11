// Package jobs runs detection and enrichment asynchronously behind a
// submit/poll interface.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/amishk599/nutrilens/internal/detect"
	"github.com/amishk599/nutrilens/internal/model"
	"github.com/amishk599/nutrilens/internal/observability"
)

// Manager owns the job store and runs one worker goroutine per admitted job.
type Manager struct {
	store    *Store
	detector model.Detector
	resolver model.NutritionResolver
	notifier model.JobNotifier
	metrics  *observability.JobMetrics
	logger   *slog.Logger

	// slots bounds concurrent jobs; nil means unbounded.
	slots chan struct{}
	wg    sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConcurrent rejects submissions with model.ErrBusy once n jobs are
// processing. n <= 0 leaves the manager unbounded.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.slots = make(chan struct{}, n)
		}
	}
}

// WithNotifier sets the notifier told about every finished job.
func WithNotifier(n model.JobNotifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics records job lifecycle instruments.
func WithMetrics(jm *observability.JobMetrics) Option {
	return func(m *Manager) {
		if jm != nil {
			m.metrics = jm
		}
	}
}

// NewManager creates a manager over store.
func NewManager(store *Store, detector model.Detector, resolver model.NutritionResolver, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		detector: detector,
		resolver: resolver,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Submit registers a processing job for img, starts its pipeline in the
// background, and returns the job id without waiting for the pipeline.
func (m *Manager) Submit(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("submit: nil image")
	}
	if !m.acquire() {
		m.logger.Warn("rejecting job, concurrency limit reached", "limit", cap(m.slots))
		if m.metrics != nil {
			m.metrics.Rejected.Add(context.Background(), 1)
		}
		return "", model.ErrBusy
	}

	job := model.Job{
		ID:        m.newID(),
		Status:    model.StatusProcessing,
		CreatedAt: m.now(),
	}
	if err := m.store.Create(job); err != nil {
		m.release()
		return "", fmt.Errorf("submit: %w", err)
	}

	if m.metrics != nil {
		ctx := context.Background()
		m.metrics.Submitted.Add(ctx, 1)
		m.metrics.InFlight.Add(ctx, 1)
	}
	m.logger.Info("job submitted", "job_id", job.ID)

	m.wg.Add(1)
	go m.work(job.ID, img)

	return job.ID, nil
}

// Poll returns the current view of job id.
func (m *Manager) Poll(id string) (model.JobView, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return model.JobView{}, model.ErrJobNotFound
	}
	return job.View(), nil
}

// Wait polls job id every interval until it is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string, interval time.Duration) (model.JobView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		view, err := m.Poll(id)
		if err != nil {
			return model.JobView{}, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown waits for running workers to finish or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
		m.logger.Info("all jobs drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (m *Manager) acquire() bool {
	if m.slots == nil {
		return true
	}
	select {
	case m.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manager) release() {
	if m.slots != nil {
		<-m.slots
	}
}

// work runs the pipeline for one job and writes its terminal state. A failure
// or panic anywhere in the pipeline becomes an error record.
func (m *Manager) work(id string, img image.Image) {
	defer m.wg.Done()
	defer m.release()

	start := m.now()
	result, err := m.runSafely(id, img)

	var (
		job      model.Job
		storeErr error
	)
	if err != nil {
		m.logger.Error("job failed", "job_id", id, "error", err, "elapsed", m.now().Sub(start))
		job, storeErr = m.store.Fail(id, err.Error(), m.now())
	} else {
		m.logger.Info("job done", "job_id", id, "foods", len(result.FoodsDetected), "elapsed", m.now().Sub(start))
		job, storeErr = m.store.Complete(id, result, m.now())
	}
	// The worker is done either way; only a stored result counts as finished.
	if m.metrics != nil {
		m.metrics.InFlight.Add(context.Background(), -1)
	}
	if storeErr != nil {
		m.logger.Error("writing job result failed", "job_id", id, "error", storeErr)
		return
	}

	if m.metrics != nil {
		m.metrics.Finished.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", string(job.Status))))
	}

	if m.notifier != nil {
		if err := m.notifier.Notify(job); err != nil {
			m.logger.Warn("job notification failed", "job_id", id, "error", err)
		}
	}
}

func (m *Manager) runSafely(id string, img image.Image) (result model.EnrichmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return m.run(context.Background(), id, img)
}

func (m *Manager) run(ctx context.Context, id string, img image.Image) (model.EnrichmentResult, error) {
	frames, err := m.detector.Detect(ctx, img)
	if err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("detection failed: %w", err)
	}

	labels := detect.Labels(detect.Aggregate(frames))
	m.logger.Debug("detected foods", "job_id", id, "labels", labels)

	info := make(map[string]model.NutrientRecord, len(labels))
	for _, label := range labels {
		info[label] = m.resolver.Resolve(ctx, label)
	}

	return model.EnrichmentResult{
		FoodsDetected: labels,
		NutritionInfo: info,
	}, nil
}
