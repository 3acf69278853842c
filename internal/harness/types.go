package harness

import "context"

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request is a single command submitted to the command endpoint.
type Request struct {
	Command string `json:"command"`
	// Inputs are written line by line to the command's stdin.
	Inputs []string `json:"inputs,omitempty"`
	// Raw commands are run by the endpoint's shell as-is instead of being
	// handed to the administrative binary.
	Raw bool `json:"raw,omitempty"`
}

// Envelope is the endpoint's answer to a Request. ExitCode belongs to the
// invoked command, not to the round trip.
type Envelope struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exitCode"`
	Message  string `json:"message"`

	// HTTP status of the round trip, zero for non-HTTP transports.
	HTTPStatus int `json:"-"`
}

// Succeeded reports whether the command ran and exited with 0.
func (e *Envelope) Succeeded() bool {
	return e != nil && e.Status == StatusOK && e.ExitCode == 0
}

// Runner submits requests to a command endpoint.
type Runner interface {
	Run(ctx context.Context, req Request) (*Envelope, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req Request) (*Envelope, error)

func (f RunnerFunc) Run(ctx context.Context, req Request) (*Envelope, error) {
	return f(ctx, req)
}
