package recorder

import "marketdata/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFetch(_ *FetchEvent) error           { return nil }
func (n *NoopRecorder) RecordPoint(_ *model.StreamingPoint) error { return nil }
func (n *NoopRecorder) RecordAlert(_ *model.FiredAlert) error     { return nil }
func (n *NoopRecorder) Close() error                              { return nil }
