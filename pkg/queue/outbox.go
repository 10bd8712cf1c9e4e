package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"reviewdesk/pkg/domain"
)

// SendOutbox publishes dispatched invitations onto a redis stream so
// the notification sender can deliver emails out of band. Entries are
// trimmed approximately at maxLen; the row in the relational store is
// the source of truth, the stream only carries delivery intent.
type SendOutbox struct {
	client *redis.Client
	stream string
	maxLen int64
}

type OutboxConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

func NewSendOutbox(cfg OutboxConfig) (*SendOutbox, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "review:invitations"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SendOutbox{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// InvitationQueued implements Notifier.
func (o *SendOutbox) InvitationQueued(ctx context.Context, inv domain.ReviewInvitation) error {
	return o.client.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{
			"invitation_id": inv.ID,
			"manuscript_id": inv.ManuscriptID,
			"reviewer_id":   inv.ReviewerID,
			"round":         inv.Round,
			"due_date":      inv.DueDate.Format(time.RFC3339Nano),
		},
	}).Err()
}

func (o *SendOutbox) Close() error {
	return o.client.Close()
}
