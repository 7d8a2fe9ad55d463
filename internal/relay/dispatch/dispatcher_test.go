package dispatch

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"form-relay/internal/common/config"
	"form-relay/internal/common/logger"
)

// ==========================
// Fake SMTP Server
// ==========================

type fakeSMTPServer struct {
	ln         net.Listener
	rejectRcpt bool
	silent     bool

	mu       sync.Mutex
	sessions int
	messages []string
}

func startFakeSMTP(t *testing.T, opts ...func(*fakeSMTPServer)) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTPServer{ln: ln}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	if s.silent {
		io.Copy(io.Discard, conn)
		return
	}

	r := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }

	reply("220 localhost ESMTP fake")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			reply("250-localhost")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			if s.rejectRcpt {
				reply("550 mailbox unavailable")
			} else {
				reply("250 OK")
			}
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, data.String())
			s.mu.Unlock()
			reply("250 OK queued")
		case cmd == "RSET" || cmd == "NOOP":
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}

func (s *fakeSMTPServer) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, append([]string(nil), s.messages...)
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.FromName = "Taraftar Dernegi"
	cfg.FromEmail = "noreply@example.com"
	cfg.Timeout = 5 * time.Second
	return cfg
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Verify(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTransport) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

type MockSESService struct {
	mock.Mock
}

func (m *MockSESService) SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

func (m *MockSESService) GetSendQuota(ctx context.Context, input *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.GetSendQuotaOutput), args.Error(1)
}

// ==========================
// SMTP transport
// ==========================

func TestDispatch_SMTP_Success(t *testing.T) {
	srv := startFakeSMTP(t)
	d := NewDispatcher(createValidConfig(srv.port()), logger.NewTestLogger(t))

	html := "<table><tr><td>Mesaj</td><td>Merhaba<br>dünya</td></tr></table>"
	ok := d.Dispatch(context.Background(), "dernek@example.com", "İletişim Formu - Test", html)
	require.True(t, ok)

	sessions, messages := srv.snapshot()
	assert.Equal(t, 2, sessions, "verify and send use separate sessions")
	require.Len(t, messages, 1)

	msg, err := mail.ReadMessage(strings.NewReader(messages[0]))
	require.NoError(t, err)
	assert.Equal(t, `"Taraftar Dernegi" <noreply@example.com>`, msg.Header.Get("From"))
	assert.Equal(t, "dernek@example.com", msg.Header.Get("To"))
	assert.Contains(t, msg.Header.Get("Content-Type"), "text/html")
	assert.NotEmpty(t, msg.Header.Get("Message-Id"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "İletişim Formu - Test", subject)

	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, html, strings.TrimRight(string(body), "\r\n"))
}

func TestDispatch_SMTP_RecipientRejected(t *testing.T) {
	srv := startFakeSMTP(t, func(s *fakeSMTPServer) { s.rejectRcpt = true })
	d := NewDispatcher(createValidConfig(srv.port()), logger.NewTestLogger(t))

	assert.False(t, d.Dispatch(context.Background(), "nobody@example.com", "Konu", "<p>x</p>"))
	_, messages := srv.snapshot()
	assert.Empty(t, messages)
}

func TestDispatch_SMTP_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	d := NewDispatcher(createValidConfig(port), logger.NewTestLogger(t))
	assert.False(t, d.Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))
}

func TestDispatch_SMTP_HungServerTimesOut(t *testing.T) {
	srv := startFakeSMTP(t, func(s *fakeSMTPServer) { s.silent = true })
	cfg := createValidConfig(srv.port())
	cfg.Timeout = 200 * time.Millisecond
	d := NewDispatcher(cfg, logger.NewTestLogger(t))

	start := time.Now()
	assert.False(t, d.Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestDispatch_SMTP_CancelledContext(t *testing.T) {
	srv := startFakeSMTP(t)
	d := NewDispatcher(createValidConfig(srv.port()), logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, d.Dispatch(ctx, "dernek@example.com", "Konu", "<p>x</p>"))
}

func TestBuildMessage_StripsHeaderBreaks(t *testing.T) {
	raw, err := buildMessage(Message{
		From:    "noreply@example.com",
		To:      "a@example.com\r\nBcc: victim@example.com",
		Subject: "Merhaba\r\nBcc: victim@example.com",
		HTML:    "<p>x</p>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Empty(t, msg.Header.Get("Bcc"))
}

// ==========================
// Dispatcher semantics
// ==========================

func TestDispatch_VerifyFailureSkipsSend(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Verify", mock.Anything).Return(errors.New("connection refused"))

	d := NewDispatcher(createValidConfig(25), logger.NewTestLogger(t), WithTransport(tr))
	assert.False(t, d.Dispatch(context.Background(), "a@example.com", "s", "<p/>"))
	tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatch_SendFailureIsNotRetried(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("Send", mock.Anything, mock.Anything).Return(errors.New("451 try again later"))

	d := NewDispatcher(createValidConfig(25), logger.NewTestLogger(t), WithTransport(tr))
	assert.False(t, d.Dispatch(context.Background(), "a@example.com", "s", "<p/>"))
	tr.AssertNumberOfCalls(t, "Send", 1)
}

func TestDispatch_MessageFields(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.From == "noreply@example.com" &&
			m.Sender == `"Taraftar Dernegi" <noreply@example.com>` &&
			m.To == "a@example.com" &&
			m.Subject == "Konu" &&
			m.HTML == "<p/>" &&
			strings.HasSuffix(m.ID, "@127.0.0.1>")
	})).Return(nil)

	d := NewDispatcher(createValidConfig(25), logger.NewTestLogger(t), WithTransport(tr))
	assert.True(t, d.Dispatch(context.Background(), "a@example.com", "Konu", "<p/>"))
	tr.AssertExpectations(t)
}

func TestDispatcher_TransportIsBuiltOnce(t *testing.T) {
	d := NewDispatcher(createValidConfig(25), logger.NewNoOpLogger())

	var wg sync.WaitGroup
	results := make([]Transport, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := d.getTransport(context.Background())
			assert.NoError(t, err)
			results[i] = tr
		}(i)
	}
	wg.Wait()

	for _, tr := range results {
		assert.Same(t, results[0], tr)
	}
}

// ==========================
// SES transport
// ==========================

func TestDispatch_SES(t *testing.T) {
	client := new(MockSESService)
	client.On("GetSendQuota", mock.Anything, mock.Anything).
		Return(&ses.GetSendQuotaOutput{Max24HourSend: 200, SentLast24Hours: 3}, nil)
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return aws.ToString(in.Source) == `"Taraftar Dernegi" <noreply@example.com>` &&
			in.Destination.ToAddresses[0] == "dernek@example.com" &&
			aws.ToString(in.Message.Body.Html.Data) == "<p>x</p>" &&
			aws.ToString(in.Message.Subject.Charset) == "UTF-8"
	})).Return(&ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil)

	cfg := createValidConfig(0)
	cfg.Provider = ProviderSES
	cfg.SESRegion = "eu-central-1"
	d := NewDispatcher(cfg, logger.NewTestLogger(t), WithSESClient(client))

	assert.True(t, d.Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))
	client.AssertExpectations(t)
}

func TestFromHeader_SameOnEveryTransport(t *testing.T) {
	srv := startFakeSMTP(t)
	smtpCfg := createValidConfig(srv.port())
	smtpCfg.FromName = "Kulüp Web"
	require.True(t, NewDispatcher(smtpCfg, logger.NewTestLogger(t)).Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))

	_, messages := srv.snapshot()
	require.Len(t, messages, 1)
	msg, err := mail.ReadMessage(strings.NewReader(messages[0]))
	require.NoError(t, err)
	assert.Equal(t, smtpCfg.FromHeader(), msg.Header.Get("From"))

	client := new(MockSESService)
	client.On("GetSendQuota", mock.Anything, mock.Anything).Return(&ses.GetSendQuotaOutput{}, nil)
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return aws.ToString(in.Source) == smtpCfg.FromHeader()
	})).Return(&ses.SendEmailOutput{MessageId: aws.String("ses-2")}, nil)

	sesCfg := smtpCfg
	sesCfg.Provider = ProviderSES
	sesCfg.SESRegion = "eu-central-1"
	require.True(t, NewDispatcher(sesCfg, logger.NewTestLogger(t), WithSESClient(client)).Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))
	client.AssertExpectations(t)
}

func TestDispatch_SES_QuotaExhausted(t *testing.T) {
	client := new(MockSESService)
	client.On("GetSendQuota", mock.Anything, mock.Anything).
		Return(&ses.GetSendQuotaOutput{Max24HourSend: 200, SentLast24Hours: 200}, nil)

	cfg := createValidConfig(0)
	cfg.Provider = ProviderSES
	cfg.SESRegion = "eu-central-1"
	d := NewDispatcher(cfg, logger.NewTestLogger(t), WithSESClient(client))

	assert.False(t, d.Dispatch(context.Background(), "dernek@example.com", "Konu", "<p>x</p>"))
	client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

// ==========================
// Config
// ==========================

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.SMTPConfig{
		Host:               "smtp.example.com",
		Port:               465,
		Secure:             true,
		FromName:           "Taraftar Dernegi",
		FromEmail:          "noreply@example.com",
		InsecureSkipVerify: true,
		MinTLSVersion:      "TLSv1.3",
		Timeout:            1500,
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderSMTP, cfg.Provider)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinTLSVersion)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "smtp.example.com:465", cfg.Addr())
	assert.Equal(t, `"Taraftar Dernegi" <noreply@example.com>`, cfg.FromHeader())

	tc := cfg.tlsConfig()
	assert.True(t, tc.InsecureSkipVerify)
	assert.Equal(t, "smtp.example.com", tc.ServerName)
}

func TestConfig_Validate(t *testing.T) {
	base := createValidConfig(587)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no host", func(c *Config) { c.Host = "" }, "smtp host is required"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "smtp port"},
		{"no from", func(c *Config) { c.FromEmail = "" }, "from email is required"},
		{"malformed from", func(c *Config) { c.FromEmail = "noreply@localhost" }, "not a valid address"},
		{"no timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"ses without region", func(c *Config) { c.Provider = ProviderSES }, "ses region is required"},
		{"unknown provider", func(c *Config) { c.Provider = "carrier-pigeon" }, "not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTLSVersion(t *testing.T) {
	v, err := parseTLSVersion("")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), v)

	_, err = parseTLSVersion("SSLv3")
	assert.Error(t, err)
}
