package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/platform/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ProgressUpdated is published after a user's aggregate changed.
type ProgressUpdated struct {
	UserID       string          `json:"user_id"`
	SubmissionID string          `json:"submission_id"`
	ProblemID    string          `json:"problem_id"`
	NewlySolved  bool            `json:"newly_solved"`
	SolvedCount  int             `json:"solved_count"`
	NewBadges    []model.BadgeID `json:"new_badges,omitempty"`
	At           time.Time       `json:"at"`
}

// Alert reports a progress update that could not be applied.
type Alert struct {
	JobID        string    `json:"job_id"`
	SubmissionID string    `json:"submission_id"`
	UserID       string    `json:"user_id"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	PublishProgressUpdated(ctx context.Context, ev ProgressUpdated) error
	PublishAlert(ctx context.Context, a Alert) error
}

type natsPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher publishes on "<prefix>.progress.updated.<user>" and
// "<prefix>.progress.alert".
func NewNATSPublisher(nc *nats.Conn, prefix string) Publisher {
	return &natsPublisher{nc: nc, prefix: prefix}
}

func (p *natsPublisher) PublishProgressUpdated(ctx context.Context, ev ProgressUpdated) error {
	return p.publish(fmt.Sprintf("%s.progress.updated.%s", p.prefix, ev.UserID), ev)
}

func (p *natsPublisher) PublishAlert(ctx context.Context, a Alert) error {
	return p.publish(p.prefix+".progress.alert", a)
}

func (p *natsPublisher) publish(subject string, msg interface{}) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

type logPublisher struct{}

// NewLogPublisher writes events to the log instead of a broker.
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) PublishProgressUpdated(ctx context.Context, ev ProgressUpdated) error {
	logger.Info(ctx, "progress updated",
		zap.String("user_id", ev.UserID),
		zap.String("submission_id", ev.SubmissionID),
		zap.Bool("newly_solved", ev.NewlySolved),
		zap.Int("solved_count", ev.SolvedCount))
	return nil
}

func (logPublisher) PublishAlert(ctx context.Context, a Alert) error {
	logger.Error(ctx, "progress update alert",
		zap.String("job_id", a.JobID),
		zap.String("submission_id", a.SubmissionID),
		zap.Int("attempts", a.Attempts),
		zap.String("error", a.Error))
	return nil
}

// Connect dials NATS. An empty url yields nil and no error.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("tle-zone-grader"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
