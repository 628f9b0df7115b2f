package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/accessterm/cardid-go/types"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "cardid.sessions"

// Publisher is the part of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each session as JSON, always without plaintext PAN.
type NATSSink struct {
	pub     Publisher
	subject string
}

func NewNATSSink(pub Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}

	return &NATSSink{
		pub:     pub,
		subject: subject,
	}
}

func (n *NATSSink) Record(ctx context.Context, s *types.CardSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(s.Redacted())
	if err != nil {
		return err
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish session %s: %w", s.ID, err)
	}

	return nil
}

// ConnectNATS dials url, authenticating with token when it is set.
func ConnectNATS(url string, token string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("cardid"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
	}

	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	return conn, nil
}
