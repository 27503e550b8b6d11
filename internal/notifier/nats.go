package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/amishk599/nutrilens/internal/model"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "nutrilens.jobs.finished"

// Ensure NATSNotifier implements model.JobNotifier.
var _ model.JobNotifier = (*NATSNotifier)(nil)

// JobFinished is the event published when a job reaches a terminal state.
type JobFinished struct {
	JobID         string                          `json:"job_id"`
	Status        model.JobStatus                 `json:"status"`
	FoodsDetected []string                        `json:"foods_detected,omitempty"`
	NutritionInfo map[string]model.NutrientRecord `json:"nutrition_info,omitempty"`
	Message       string                          `json:"message,omitempty"`
	ProcessingMs  int64                           `json:"processing_time_ms"`
	HappenedAt    int64                           `json:"happened_at"`
}

// NewJobFinished builds the event for job.
func NewJobFinished(job model.Job) JobFinished {
	ev := JobFinished{
		JobID:      job.ID,
		Status:     job.Status,
		Message:    job.Message,
		HappenedAt: job.FinishedAt.Unix(),
	}
	if !job.CreatedAt.IsZero() && !job.FinishedAt.IsZero() {
		ev.ProcessingMs = job.FinishedAt.Sub(job.CreatedAt).Milliseconds()
	}
	if job.Status == model.StatusDone && job.Result != nil {
		ev.FoodsDetected = job.Result.FoodsDetected
		ev.NutritionInfo = job.Result.NutritionInfo
	}
	return ev
}

// publisher is the subset of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes a JobFinished event for every finished job.
type NATSNotifier struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier connects to url and publishes on subject.
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("nutrilens"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{conn: nc, nc: nc, subject: subject}, nil
}

// Notify publishes the job's JobFinished event.
func (n *NATSNotifier) Notify(job model.Job) error {
	b, err := json.Marshal(NewJobFinished(job))
	if err != nil {
		return fmt.Errorf("encoding job event: %w", err)
	}
	if err := n.conn.Publish(n.subject, b); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}
