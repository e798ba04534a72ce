package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// natsConn is the subset of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes snapshots as JSON to a subject. The final snapshot
// of a batch is also published to "<subject>.done".
type NATSPublisher struct {
	conn    natsConn
	subject string
	closeFn func()
}

// ConnectNATS dials url and returns a publisher for subject.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("valuation-cli"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "progress: connect nats %s", url)
	}
	return &NATSPublisher{
		conn:    nc,
		subject: subject,
		closeFn: func() { _ = nc.Drain() },
	}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, snap model.BatchSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "progress: marshal snapshot")
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return eris.Wrapf(err, "progress: publish %s", p.subject)
	}
	if snap.Finished {
		if err := p.conn.Publish(p.subject+".done", b); err != nil {
			return eris.Wrapf(err, "progress: publish %s.done", p.subject)
		}
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}
