package mail

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/pkg/logger"
)

type Kind string

const (
	KindActivation Kind = "activation"
	KindReset      Kind = "password_reset"
)

type Message struct {
	Kind   Kind
	UserID uuid.UUID
	From   string
	To     string
	Link   string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher queues activation and reset mails and delivers them from a
// background worker. Enqueueing never blocks: a full queue drops the mail.
type Dispatcher struct {
	sender  Sender
	baseURL string
	from    string
	timeout time.Duration
	queue   chan Message
	done    chan struct{}
	close   sync.Once
}

type Options struct {
	BaseURL   string
	From      string
	QueueSize int
	Timeout   time.Duration
}

func NewDispatcher(sender Sender, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	d := &Dispatcher{
		sender:  sender,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		from:    opts.From,
		timeout: opts.Timeout,
		queue:   make(chan Message, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go d.processQueue()
	return d
}

func (d *Dispatcher) SendActivationLink(_ context.Context, userID uuid.UUID, to, token string) {
	d.enqueue(Message{Kind: KindActivation, UserID: userID, From: d.from, To: to, Link: d.link("/activate", token)})
}

func (d *Dispatcher) SendResetLink(_ context.Context, userID uuid.UUID, to, token string) {
	d.enqueue(Message{Kind: KindReset, UserID: userID, From: d.from, To: to, Link: d.link("/reset-password", token)})
}

// Close stops accepting mail and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.close.Do(func() {
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) link(path, token string) string {
	return d.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (d *Dispatcher) enqueue(msg Message) {
	defer func() {
		// Send on a closed queue during shutdown.
		if recover() != nil {
			logger.Warn("mail_dispatcher_closed", map[string]interface{}{
				"kind":    string(msg.Kind),
				"user_id": msg.UserID.String(),
			})
		}
	}()

	select {
	case d.queue <- msg:
	default:
		logger.Warn("mail_queue_full", map[string]interface{}{
			"kind":    string(msg.Kind),
			"user_id": msg.UserID.String(),
			"dropped": true,
		})
	}
}

func (d *Dispatcher) processQueue() {
	defer close(d.done)

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, msg)
		cancel()

		if err != nil {
			logger.Error("mail_send_failed", err, map[string]interface{}{
				"kind":    string(msg.Kind),
				"user_id": msg.UserID.String(),
			})
			continue
		}
		logger.Info("mail_sent", map[string]interface{}{
			"kind":    string(msg.Kind),
			"user_id": msg.UserID.String(),
		})
	}
}

// LogSender writes mails to the structured log instead of delivering them.
// The token part of the link is redacted.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Info("mail_outgoing", map[string]interface{}{
		"kind": string(msg.Kind),
		"from": msg.From,
		"to":   msg.To,
		"link": redactLink(msg.Link),
	})
	return nil
}

func redactLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[REDACTED]"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "[REDACTED]")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
