package report

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/bazelide/internal/events"
	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// NATSPublisher publishes refresh outcomes as JSON to a NATS subject, so
// other workspace tooling (editor plugins, CI dashboards) can react without
// polling the history database.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to connect to NATS").
			Warning().
			WithContext("url", url).
			Build()
	}

	slog.Info("Publishing refresh outcomes to NATS",
		slog.String("url", url),
		slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// PublishOutcome sends one completed refresh.
func (p *NATSPublisher) PublishOutcome(evt events.RefreshCompleted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal refresh outcome").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to publish refresh outcome").
			Warning().
			Build()
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
