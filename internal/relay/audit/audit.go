// Package audit keeps a best-effort record of every relay attempt.
package audit

import (
	"context"
	"time"

	"form-relay/internal/common/logger"
)

// Record describes the outcome of one relay request. It carries no form
// content; the fallback file is the data of record.
type Record struct {
	RequestID string    `json:"requestId"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	ClientIP  string    `json:"clientIp,omitempty"`
	Persisted bool      `json:"persisted"`
	Delivered bool      `json:"delivered"`
	Status    int       `json:"status"`
	Success   bool      `json:"success"`
	Duration  int64     `json:"durationMs"`
	CreatedAt time.Time `json:"createdAt"`
}

type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// Recorder fans records out to every sink. Sink failures are logged and
// never surface to the caller.
type Recorder struct {
	sinks   []Sink
	logger  logger.Logger
	timeout time.Duration
}

func NewRecorder(log logger.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Recorder{sinks: sinks, logger: log, timeout: 3 * time.Second}
}

func (r *Recorder) Enabled() bool {
	return r != nil && len(r.sinks) > 0
}

func (r *Recorder) Record(ctx context.Context, rec Record) {
	if !r.Enabled() {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	// the request may already be finished; keep values, drop cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Write(ctx, rec); err != nil {
			r.logger.Warn("Audit write failed", map[string]interface{}{
				"sink":      s.Name(),
				"requestId": rec.RequestID,
				"error":     err,
			})
		}
	}
}
