// Package fallback writes each raw submission to disk before any delivery
// attempt so it survives a failed or hung mail send.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/metrics"
)

const maxCollisionSuffix = 1000

// Mirror receives a copy of every file written locally.
type Mirror interface {
	Put(ctx context.Context, name string, body []byte) (string, error)
}

type Writer struct {
	dir    string
	logger logger.Logger
	mirror Mirror
	now    func() time.Time
}

type Option func(*Writer)

// WithMirror copies successful writes to m. Mirror failures are logged only.
func WithMirror(m Mirror) Option {
	return func(w *Writer) { w.mirror = m }
}

// WithClock overrides the timestamp source used for file names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func NewWriter(dir string, log logger.Logger, opts ...Option) *Writer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	w := &Writer{dir: dir, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Dir() string { return w.dir }

// Write stores payload as indented JSON in <dir>/<kind>-<epoch-ms>.json and
// reports whether the file was written. It never returns an error.
func (w *Writer) Write(ctx context.Context, kind string, payload map[string]interface{}) bool {
	log := logger.FromContext(ctx, w.logger).WithFields(map[string]interface{}{"kind": kind})

	path, body, err := w.write(kind, payload)
	if err != nil {
		stdErr := relayerrors.NewPersistenceFailedError(w.dir, err)
		log.Error("Fallback write failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
		metrics.FallbackWrites.WithLabelValues(kind, metrics.ResultError).Inc()
		return false
	}

	metrics.FallbackWrites.WithLabelValues(kind, metrics.ResultOK).Inc()
	log.Info("Submission saved", map[string]interface{}{"path": path})

	if w.mirror != nil {
		if key, err := w.mirror.Put(ctx, filepath.Base(path), body); err != nil {
			log.Warn("Fallback mirror failed", map[string]interface{}{"error": err})
		} else {
			log.Debug("Fallback mirrored", map[string]interface{}{"key": key})
		}
	}
	return true
}

// encode indents the payload and keeps <, > and & literal so saved
// messages read the way they were typed.
func encode(payload map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Writer) write(kind string, payload map[string]interface{}) (string, []byte, error) {
	body, err := encode(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode payload: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create submissions dir: %w", err)
	}

	f, path, err := w.create(kind)
	if err != nil {
		return "", nil, err
	}

	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", nil, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", nil, fmt.Errorf("close %s: %w", path, err)
	}
	return path, body, nil
}

// create opens a new file exclusively. Same-millisecond collisions get a
// numeric suffix instead of overwriting the earlier file.
func (w *Writer) create(kind string) (*os.File, string, error) {
	base := fmt.Sprintf("%s-%d", kind, w.now().UnixMilli())
	for i := 0; i <= maxCollisionSuffix; i++ {
		name := base + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.json", base, i)
		}
		path := filepath.Join(w.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s", base)
}
