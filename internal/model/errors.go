package model

import (
	"errors"
	"fmt"
)

// ErrNotTrained is returned when predicting with a nil or unfitted bundle.
var ErrNotTrained = errors.New("model bundle is not trained")

// DegenerateDatasetError indicates there is not enough data to fit the pipeline.
// No bundle is produced when it is returned.
type DegenerateDatasetError struct {
	Rows     int
	Dropped  int
	Clusters int
	Reason   string
}

func (e *DegenerateDatasetError) Error() string {
	msg := fmt.Sprintf("degenerate dataset: %s (rows=%d", e.Reason, e.Rows)
	if e.Clusters > 0 {
		msg += fmt.Sprintf(", clusters=%d", e.Clusters)
	}
	if e.Dropped > 0 {
		msg += fmt.Sprintf(", dropped during normalization=%d", e.Dropped)
	}
	return msg + ")"
}

// FitError wraps a numerical failure in one training stage.
type FitError struct {
	Stage string
	Err   error
}

func (e *FitError) Error() string { return fmt.Sprintf("fit %s: %v", e.Stage, e.Err) }

func (e *FitError) Unwrap() error { return e.Err }
