package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"DipSentinel/internal/logging"
	"DipSentinel/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/emersion/go-message/mail"
	"github.com/phuslu/log"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Sender    string
	Recipient string
	UseTLS    bool
	Timeout   time.Duration
}

// EmailNotifier sends the report as a multipart text/HTML message.
type EmailNotifier struct {
	cfg        EmailConfig
	maxRetries uint64
	logger     *log.Logger

	deliver    func(ctx context.Context, msg []byte) error
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

func NewEmailNotifier(cfg EmailConfig, maxRetries int, logger *log.Logger) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logging.Discard()
	}
	e := &EmailNotifier{
		cfg:        cfg,
		maxRetries: uint64(maxRetries),
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		now: time.Now,
	}
	e.deliver = e.sendSMTP
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, report *model.Report) error {
	msg, err := e.BuildMessage(report)
	if err != nil {
		return &SendError{Sink: e.Name(), Err: err}
	}

	attempt := 0
	op := func() error {
		attempt++
		return e.deliver(ctx, msg)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.maxRetries), ctx)
	err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		e.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("email send failed")
	})
	if err != nil {
		return &SendError{Sink: e.Name(), Err: fmt.Errorf("after %d attempts: %w", attempt, err)}
	}
	e.logger.Info().Str("recipient", e.cfg.Recipient).Str("subject", Subject(report)).Msg("email sent")
	return nil
}

// BuildMessage renders the report into an RFC 5322 message with plain-text
// and HTML alternatives.
func (e *EmailNotifier) BuildMessage(report *model.Report) ([]byte, error) {
	htmlBody, err := FormatHTML(report)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(e.now())
	h.SetSubject(Subject(report))
	h.SetAddressList("From", []*mail.Address{{Name: "DipSentinel", Address: e.cfg.Sender}})
	h.SetAddressList("To", []*mail.Address{{Address: e.cfg.Recipient}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	if err := writeInline(tw, "text/plain", FormatText(report, false)); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func (e *EmailNotifier) sendSMTP(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	dialer := net.Dialer{Timeout: e.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	deadline := time.Now().Add(e.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	tlsConfig := &tls.Config{ServerName: e.cfg.Host}
	// Port 465 speaks TLS from the first byte.
	if e.cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if e.cfg.UseTLS && e.cfg.Port != 465 {
		if err := c.StartTLS(tlsConfig); err != nil {
			return classifySMTP(fmt.Errorf("starttls: %w", err))
		}
	}
	if e.cfg.Username != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return classifySMTP(fmt.Errorf("auth: %w", err))
		}
	}
	if err := c.Mail(e.cfg.Sender); err != nil {
		return classifySMTP(fmt.Errorf("mail from: %w", err))
	}
	if err := c.Rcpt(e.cfg.Recipient); err != nil {
		return classifySMTP(fmt.Errorf("rcpt to: %w", err))
	}
	w, err := c.Data()
	if err != nil {
		return classifySMTP(fmt.Errorf("data: %w", err))
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(fmt.Errorf("finish body: %w", err))
	}
	return c.Quit()
}

// classifySMTP marks permanent (5xx) server replies so they are not retried.
func classifySMTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return backoff.Permanent(err)
	}
	return err
}
