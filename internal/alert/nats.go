package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject deals are published to.
const DefaultSubject = "dealscout.deals"

type publisher interface {
	Publish(subject string, data []byte) error
}

// DealMessage is the payload published for each deal.
type DealMessage struct {
	Opportunity model.Opportunity `json:"opportunity"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source"`
	Version     string            `json:"version"`
}

// NATSPublisher publishes deals as JSON messages.
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("dealscout"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Notify(ctx context.Context, o model.Opportunity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(DealMessage{
		Opportunity: o,
		Timestamp:   time.Now().UTC(),
		Source:      "dealscout",
		Version:     "1.0",
	})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
