// Package handler implements the submission relay endpoints: shape check,
// fallback write, mail rendering, dispatch and response mapping.
package handler

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/metrics"
	"form-relay/internal/relay/alert"
	"form-relay/internal/relay/audit"
	"form-relay/internal/relay/mailformat"
	"form-relay/internal/relay/submission"
	"form-relay/pkg/registry"
)

const defaultMaxBodyBytes = 1 << 20

// Persister stores the raw submission before delivery is attempted.
type Persister interface {
	Write(ctx context.Context, kind string, payload map[string]interface{}) bool
}

// Mailer makes a single delivery attempt.
type Mailer interface {
	Dispatch(ctx context.Context, to, subject, html string) bool
}

type Dependencies struct {
	Registry     *registry.FormRegistry
	Persister    Persister
	Mailer       Mailer
	Audit        *audit.Recorder
	Alerts       alert.Notifier
	Logger       logger.Logger
	MaxBodyBytes int64
}

// renderer turns a decoded formData map into a subject and an HTML body.
type renderer func(formData map[string]interface{}) (subject, html string)

var renderers = map[submission.Kind]renderer{
	submission.KindMembership: func(m map[string]interface{}) (string, string) {
		s := submission.MembershipFromMap(m)
		return mailformat.MembershipSubject(s), mailformat.Membership(s)
	},
	submission.KindContact: func(m map[string]interface{}) (string, string) {
		s := submission.ContactFromMap(m)
		return mailformat.ContactSubject(s), mailformat.Contact(s)
	},
}

type Handler struct {
	registry     *registry.FormRegistry
	persister    Persister
	mailer       Mailer
	audit        *audit.Recorder
	alerts       alert.Notifier
	errors       *relayerrors.ErrorHandler
	logger       logger.Logger
	schemas      map[string][]byte
	maxBodyBytes int64
	now          func() time.Time

	// pending tracks alert and audit work that outlives the response.
	pending sync.WaitGroup
}

func NewHandler(deps Dependencies) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	reg := deps.Registry
	if reg == nil {
		reg = registry.Default()
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = alert.Nop{}
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	h := &Handler{
		registry:     reg,
		persister:    deps.Persister,
		mailer:       deps.Mailer,
		audit:        deps.Audit,
		alerts:       alerts,
		errors:       relayerrors.NewErrorHandler(log),
		logger:       log,
		schemas:      make(map[string][]byte),
		maxBodyBytes: maxBody,
		now:          time.Now,
	}

	for _, f := range reg.Forms {
		schema, err := f.SchemaJSON()
		if err != nil {
			log.Warn("Ignoring unusable form schema", map[string]interface{}{"kind": f.Kind, "error": err})
			continue
		}
		if schema != nil {
			h.schemas[f.Kind] = schema
		}
	}
	return h
}

// Health answers GET /.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	relayerrors.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: timestamp(h.now()),
	})
}

// Test answers GET /test.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	relayerrors.WriteJSON(w, http.StatusOK, TestResponse{
		Success:   true,
		Message:   MessageTest,
		Timestamp: timestamp(h.now()),
	})
}

// Relay returns the handler for one registered form.
func (h *Handler) Relay(form registry.Form) http.HandlerFunc {
	render := renderers[submission.Kind(form.Kind)]
	return func(w http.ResponseWriter, r *http.Request) {
		h.relay(w, r, form, render)
	}
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, form registry.Form, render renderer) {
	start := h.now()
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := logger.FromContext(ctx, h.logger).WithFields(map[string]interface{}{
		"kind":      form.Kind,
		"requestId": requestID,
	})
	ctx = logger.ToContext(ctx, log)

	// RECEIVED
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.reject(w, r, form.Kind, relayerrors.NewInvalidRequestError(err))
		return
	}
	formData, recipient, err := parseRequest(body)
	if err != nil {
		h.reject(w, r, form.Kind, err)
		return
	}

	// VALIDATED
	h.checkSchema(log, form.Kind, formData)

	persisted := h.persister.Write(ctx, form.Kind, formData)

	// PERSISTED
	subject, html := render(formData)

	dispatchStart := h.now()
	sent := h.mailer.Dispatch(ctx, recipient, subject, html)
	metrics.DeliveryDuration.WithLabelValues(form.Kind).Observe(h.now().Sub(dispatchStart).Seconds())

	// SENT | SEND_FAILED
	status := http.StatusOK
	resp := RelayResponse{Success: true, Message: MessageDelivered}
	outcome := metrics.OutcomeDelivered

	switch {
	case sent:
		log.Info("Submission relayed", map[string]interface{}{"persisted": persisted})
	case persisted:
		resp = RelayResponse{Success: form.SuccessOnDeliveryFailure, Message: form.DeliveryFailedMessage}
		outcome = metrics.OutcomeSavedNotSent
		log.Warn("Submission saved but mail not sent", nil)
	default:
		status = http.StatusInternalServerError
		outcome = metrics.OutcomeFailed
	}

	// RESPONDED
	if status == http.StatusInternalServerError {
		h.errors.HandleHTTPError(w, r, relayerrors.NewRelayFailedError(form.Kind))
	} else {
		relayerrors.WriteJSON(w, status, resp)
	}
	metrics.RelaySubmissions.WithLabelValues(form.Kind, outcome).Inc()

	rec := audit.Record{
		RequestID: requestID,
		Kind:      form.Kind,
		Recipient: recipient,
		ClientIP:  remoteIP(r),
		Persisted: persisted,
		Delivered: sent,
		Status:    status,
		Success:   status == http.StatusOK && resp.Success,
		Duration:  h.now().Sub(start).Milliseconds(),
	}
	failure := alert.DeliveryFailure{
		RequestID: requestID,
		Kind:      form.Kind,
		Recipient: recipient,
		Persisted: persisted,
		At:        h.now().UTC(),
	}
	bg := context.WithoutCancel(ctx)
	h.afterResponse(func() {
		if !sent {
			h.alerts.DeliveryFailed(bg, failure)
		}
		h.audit.Record(bg, rec)
	})
}

// afterResponse runs fn off the request goroutine so the client never waits
// on alert or audit sinks.
func (h *Handler) afterResponse(fn func()) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		fn()
	}()
}

// Wait blocks until background alert and audit work has finished or ctx is
// done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, kind string, err error) {
	metrics.RelaySubmissions.WithLabelValues(kind, metrics.OutcomeRejected).Inc()
	h.errors.HandleHTTPError(w, r, err)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
