package dispatch

import (
	"context"
	"time"
)

// Message is one outgoing HTML mail.
type Message struct {
	From    string // envelope sender
	Sender  string // From header, see Config.FromHeader
	To      string
	Subject string
	HTML    string
	Date    time.Time
	ID      string
}

// Transport delivers messages through one provider. Verify checks that the
// provider is reachable and accepts our credentials.
type Transport interface {
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
}
