package notify

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// ErrNoAddress is returned when the recipient has no usable contact for the
// chosen channel.
var ErrNoAddress = errors.New("notify: recipient has no address for channel")

// Channel names a delivery transport.
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelEmail Channel = "email"
	ChannelQueue Channel = "queue"
)

// Recipient is the person being reminded.
type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Lang  string `json:"lang"`
}

// Message is one rendered reminder.
type Message struct {
	BookingID   string    `json:"booking_id"`
	Tier        string    `json:"tier"`
	To          Recipient `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Deliverer hands a reminder to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
	Channel() Channel
}

// LogDeliverer writes reminders to the structured log. It is the default
// transport when nothing external is configured.
type LogDeliverer struct {
	logger *logging.Logger
}

func NewLogDeliverer(logger *logging.Logger) *LogDeliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Info(msg.Body,
		"component", "notify",
		"booking_id", msg.BookingID,
		"tier", msg.Tier,
		"recipient_id", msg.To.ID,
		"lang", msg.To.Lang,
	)
	return nil
}

func (d *LogDeliverer) Channel() Channel { return ChannelLog }

// EmailDeliverer sends reminders through an EmailSender.
type EmailDeliverer struct {
	sender EmailSender
}

func NewEmailDeliverer(sender EmailSender) *EmailDeliverer {
	if sender == nil {
		panic("notify: email sender required")
	}
	return &EmailDeliverer{sender: sender}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, msg Message) error {
	if msg.To.Email == "" {
		return ErrNoAddress
	}
	return d.sender.Send(ctx, EmailMessage{
		To:      msg.To.Email,
		ToName:  msg.To.Name,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
}

func (d *EmailDeliverer) Channel() Channel { return ChannelEmail }

var (
	_ Deliverer = (*LogDeliverer)(nil)
	_ Deliverer = (*EmailDeliverer)(nil)
)
