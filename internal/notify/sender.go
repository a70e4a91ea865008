package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/libraryhub/backend/internal/models"
)

// Message is one outbound notification addressed to a member
type Message struct {
	ID         string
	MemberID   int64
	MemberName string
	Recipient  string
	Type       models.NotificationType
	Subject    string
	Body       string
}

// Sender delivers a message over one channel
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// LogSender stands in for an email gateway by writing each message to the log
type LogSender struct {
	logf func(format string, v ...any)
}

func NewLogSender() *LogSender {
	return &LogSender{logf: log.Printf}
}

func (s *LogSender) Channel() string {
	return "email"
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Recipient == "" {
		return fmt.Errorf("member %d has no email address", msg.MemberID)
	}
	s.logf("[EMAIL LOG] %s -> member %d <%s> [%s] %s: %s",
		msg.ID, msg.MemberID, msg.Recipient, msg.Type, msg.Subject, msg.Body)
	return nil
}

// MultiSender delivers through a primary channel and mirrors to the others.
// Only the primary channel decides success; mirror failures are logged.
type MultiSender struct {
	primary Sender
	mirrors []Sender
}

func NewMultiSender(primary Sender, mirrors ...Sender) *MultiSender {
	return &MultiSender{primary: primary, mirrors: mirrors}
}

func (m *MultiSender) Channel() string {
	names := []string{m.primary.Channel()}
	for _, s := range m.mirrors {
		names = append(names, s.Channel())
	}
	return strings.Join(names, "+")
}

func (m *MultiSender) Send(ctx context.Context, msg Message) error {
	if err := m.primary.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", m.primary.Channel(), err)
	}
	for _, s := range m.mirrors {
		if err := s.Send(ctx, msg); err != nil {
			log.Printf("[NOTIFY] %s mirror failed for %s: %v", s.Channel(), msg.ID, err)
		}
	}
	return nil
}
