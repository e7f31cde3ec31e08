package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
)

// Publisher is the minimal bus seam NATSSink needs. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on "<prefix>.<kind>", e.g.
// semverx.events.swapphase.
type NATSSink struct {
	pub    Publisher
	prefix string
	log    logr.Logger
}

func NewNATSSink(pub Publisher, prefix string, log logr.Logger) *NATSSink {
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, "."), log: log}
}

// DialNATS connects to url, or to the local default server when url is empty.
func DialNATS(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("semverx"))
	if err != nil {
		return nil, fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Emit never blocks on the bus beyond the client's own buffering; publish
// failures are logged and dropped.
func (s *NATSSink) Emit(e Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		s.log.Error(err, "encode event", "kind", string(e.Kind))
		return
	}
	subject := s.prefix + "." + strings.ToLower(string(e.Kind))
	if err := s.pub.Publish(subject, raw); err != nil {
		s.log.Info("publish event failed", "subject", subject, "error", err.Error())
	}
}
