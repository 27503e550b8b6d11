package model

import (
	"context"
	"encoding/json"
	"image"
	"time"
)

// JobStatus is the lifecycle state of a detection job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one detection and enrichment request.
type Job struct {
	ID         string
	Status     JobStatus
	Result     *EnrichmentResult // set only when Status is done
	Message    string            // set only when Status is error
	CreatedAt  time.Time
	FinishedAt time.Time // zero while processing
}

// View returns the caller-facing snapshot of the job.
func (j Job) View() JobView {
	v := JobView{Status: j.Status}
	switch j.Status {
	case StatusDone:
		if j.Result != nil {
			v.FoodsDetected = j.Result.FoodsDetected
			v.NutritionInfo = j.Result.NutritionInfo
		}
		if v.FoodsDetected == nil {
			v.FoodsDetected = []string{}
		}
		if v.NutritionInfo == nil {
			v.NutritionInfo = map[string]NutrientRecord{}
		}
	case StatusError:
		v.Message = j.Message
	}
	return v
}

// JobView is what a poll returns.
type JobView struct {
	Status        JobStatus                 `json:"status"`
	FoodsDetected []string                  `json:"foods_detected,omitempty"`
	NutritionInfo map[string]NutrientRecord `json:"nutrition_info,omitempty"`
	Message       string                    `json:"message,omitempty"`
}

// MarshalJSON emits only the fields that belong to the view's status, so a
// finished job with no detections still carries empty lists.
func (v JobView) MarshalJSON() ([]byte, error) {
	switch v.Status {
	case StatusDone:
		foods := v.FoodsDetected
		if foods == nil {
			foods = []string{}
		}
		info := v.NutritionInfo
		if info == nil {
			info = map[string]NutrientRecord{}
		}
		return json.Marshal(struct {
			Status        JobStatus                 `json:"status"`
			FoodsDetected []string                  `json:"foods_detected"`
			NutritionInfo map[string]NutrientRecord `json:"nutrition_info"`
		}{v.Status, foods, info})
	case StatusError:
		return json.Marshal(struct {
			Status  JobStatus `json:"status"`
			Message string    `json:"message"`
		}{v.Status, v.Message})
	default:
		return json.Marshal(struct {
			Status JobStatus `json:"status"`
		}{v.Status})
	}
}

// Detector runs object detection on an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Frame, error)
}

// NutritionSource looks up nutrient data for a food label.
// A nil record with a nil error means the source had nothing for the label.
type NutritionSource interface {
	Name() string
	Lookup(ctx context.Context, label string) (*NutrientRecord, error)
}

// NutritionResolver always produces a record, falling back to unknown values.
type NutritionResolver interface {
	Resolve(ctx context.Context, label string) NutrientRecord
}

// NutritionCache stores resolved records keyed by label.
type NutritionCache interface {
	Get(label string) (*NutrientRecord, error)
	Put(label string, rec NutrientRecord) error
	Cleanup(olderThan time.Duration) error
}

// JobNotifier is told about every job that reaches a terminal state.
type JobNotifier interface {
	Notify(job Job) error
}
