package notifier

import (
	"log/slog"

	"github.com/amishk599/nutrilens/internal/model"
)

// Ensure LogNotifier implements model.JobNotifier.
var _ model.JobNotifier = (*LogNotifier)(nil)

// LogNotifier writes finished jobs to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each finished job via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the job id, status, and either its foods or its failure message.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(job model.Job) error {
	args := []any{"job_id", job.ID, "status", string(job.Status)}
	if !job.FinishedAt.IsZero() && !job.CreatedAt.IsZero() {
		args = append(args, "duration", job.FinishedAt.Sub(job.CreatedAt).String())
	}
	switch job.Status {
	case model.StatusDone:
		var foods []string
		if job.Result != nil {
			foods = job.Result.FoodsDetected
		}
		args = append(args, "foods", foods)
	case model.StatusError:
		args = append(args, "message", job.Message)
	}
	n.logger.Info("job finished", args...)
	return nil
}
