package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/pkg/errors"
)

// NATSClient talks to the command endpoint's micro service.
type NATSClient struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSClient returns a runner sending requests to "<prefix>.RUN".
func NewNATSClient(nc *nats.Conn, prefix string) *NATSClient {
	return &NATSClient{nc: nc, prefix: prefix}
}

func (c *NATSClient) Run(ctx context.Context, req Request) (*Envelope, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	subject := fmt.Sprintf("%s.RUN", c.prefix)
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, &TransportError{Op: "request " + subject, Err: err}
	}

	if desc := msg.Header.Get(micro.ErrorHeader); desc != "" {
		code := msg.Header.Get(micro.ErrorCodeHeader)
		return nil, &TransportError{Op: "request " + subject, Err: errors.Errorf("service error %s: %s", code, desc)}
	}

	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return nil, &TransportError{Op: "decode response", Err: errors.Wrapf(err, "body: %s", string(msg.Data))}
	}
	return &envelope, nil
}

// Environment returns the endpoint host's environment variables.
func (c *NATSClient) Environment(ctx context.Context) (map[string]string, error) {
	subject := fmt.Sprintf("%s.ENV", c.prefix)
	msg, err := c.nc.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return nil, &TransportError{Op: "request " + subject, Err: err}
	}

	environ := map[string]string{}
	if err := json.Unmarshal(msg.Data, &environ); err != nil {
		return nil, &TransportError{Op: "decode env", Err: err}
	}
	return environ, nil
}

// Ping checks that the micro service answers.
func (c *NATSClient) Ping(ctx context.Context) error {
	subject := fmt.Sprintf("%s.PING", c.prefix)
	if _, err := c.nc.RequestWithContext(ctx, subject, nil); err != nil {
		return &TransportError{Op: "request " + subject, Err: err}
	}
	return nil
}
