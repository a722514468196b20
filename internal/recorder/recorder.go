package recorder

import (
	"time"

	"marketdata/internal/model"
)

// FetchEvent records the outcome of one provider fetch.
type FetchEvent struct {
	Symbol  string
	Source  string
	Bars    int
	Elapsed time.Duration
	Error   string // empty on success
}

// Recorder persists subsystem history for offline analysis. Implementations
// must be safe for concurrent use; callers log and continue on error.
type Recorder interface {
	RecordFetch(evt *FetchEvent) error
	RecordPoint(pt *model.StreamingPoint) error
	RecordAlert(alert *model.FiredAlert) error
	Close() error
}
