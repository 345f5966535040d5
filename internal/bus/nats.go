package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url, "compliance-publisher")
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn   *nats.Conn
	Logger *slog.Logger
}

func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := connect(url, "compliance-subscriber")
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn, Logger: logger}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

// Subscribe decodes every message on subject into T. Messages that do not
// decode are logged and dropped.
func Subscribe[T any](s *Subscriber, subject string, handler func(T)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		evt, err := Decode[T](msg.Data)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("dropping malformed event", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			}
			return
		}
		handler(evt)
	})
}

func Decode[T any](data []byte) (T, error) {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
}
