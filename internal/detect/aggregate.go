// Package detect turns raw detection output into food labels.
package detect

import (
	"sort"

	"github.com/amishk599/nutrilens/internal/model"
)

// Aggregate collects the label of every detection in every frame into a set.
// Labels are kept exactly as the model returned them and no confidence
// threshold is applied.
func Aggregate(frames []model.Frame) model.DetectionSet {
	set := make(model.DetectionSet)
	for _, f := range frames {
		for _, d := range f.Detections {
			set.Add(d.Label)
		}
	}
	return set
}

// Labels returns the set's labels in sorted order.
func Labels(set model.DetectionSet) []string {
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
