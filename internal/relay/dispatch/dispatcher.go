// Package dispatch sends relay mails through SMTP or SES. Every call makes a
// single attempt; failures are logged and reported as false.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	commonaws "form-relay/internal/common/aws"
	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
)

type Dispatcher struct {
	cfg    Config
	logger logger.Logger

	mu        sync.Mutex
	transport Transport
	sesClient SESService
	now       func() time.Time
}

type Option func(*Dispatcher)

// WithTransport installs a ready transport, bypassing provider selection.
func WithTransport(t Transport) Option {
	return func(d *Dispatcher) { d.transport = t }
}

// WithSESClient sets the client used when the provider is ses.
func WithSESClient(c SESService) Option {
	return func(d *Dispatcher) { d.sesClient = c }
}

func NewDispatcher(cfg Config, log logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"provider": cfg.Provider}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch verifies the transport and sends one message to to. It returns
// true only when the provider accepted the message.
func (d *Dispatcher) Dispatch(ctx context.Context, to, subject, html string) bool {
	log := logger.FromContext(ctx, d.logger).WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
	})

	t, err := d.getTransport(ctx)
	if err != nil {
		log.Error("Mail transport unavailable", map[string]interface{}{"error": err})
		return false
	}

	verifyCtx, cancel := d.withTimeout(ctx)
	err = t.Verify(verifyCtx)
	cancel()
	if err != nil {
		d.logFailure(log, "verify", err)
		return false
	}

	msg := Message{
		From:    d.cfg.FromEmail,
		Sender:  d.cfg.FromHeader(),
		To:      to,
		Subject: subject,
		HTML:    html,
		Date:    d.now(),
		ID:      fmt.Sprintf("<%s@%s>", uuid.NewString(), d.messageIDHost()),
	}

	sendCtx, cancel := d.withTimeout(ctx)
	err = t.Send(sendCtx, msg)
	cancel()
	if err != nil {
		d.logFailure(log, "send", err)
		return false
	}

	log.Info("Mail sent", map[string]interface{}{"messageId": msg.ID})
	return true
}

func (d *Dispatcher) logFailure(log logger.Logger, stage string, err error) {
	stdErr := relayerrors.NewDeliveryFailedError(stage, err)
	log.Error(stdErr.Message, map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
	})
}

// Verify checks the transport without sending, for readiness probes.
func (d *Dispatcher) Verify(ctx context.Context) error {
	t, err := d.getTransport(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return t.Verify(ctx)
}

func (d *Dispatcher) getTransport(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport != nil {
		return d.transport, nil
	}

	switch d.cfg.Provider {
	case ProviderSES:
		if d.sesClient == nil {
			client, err := commonaws.NewSESClient(ctx, d.cfg.SESRegion)
			if err != nil {
				return nil, fmt.Errorf("create SES client: %w", err)
			}
			d.sesClient = client
		}
		d.transport = newSESTransport(d.sesClient)
	case ProviderSMTP, "":
		d.transport = newSMTPTransport(d.cfg)
	default:
		return nil, fmt.Errorf("mail provider %q not supported", d.cfg.Provider)
	}
	return d.transport, nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.Timeout)
}

func (d *Dispatcher) messageIDHost() string {
	if d.cfg.Host != "" {
		return d.cfg.Host
	}
	return "form-relay"
}
