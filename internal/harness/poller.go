package harness

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the pause between two polls.
	DefaultInterval = 200 * time.Millisecond
	// PollsPerSecond sets the poll budget: a wait of N seconds issues at
	// most N*PollsPerSecond polls.
	PollsPerSecond = 5

	DefaultExistenceTimeout = 10
	DefaultSizeTimeout      = 15

	existsMarker    = "exists"
	notExistsMarker = "not_exists"
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+)gb$`)

// Poller blocks until a side effect on the remote node becomes visible.
// A Poller holds no per-wait state and may be shared, but each wait is a
// synchronous loop that runs to success or timeout.
type Poller struct {
	runner   Runner
	interval time.Duration
	sleep    func(time.Duration)
	log      logrus.FieldLogger
}

type PollerOption func(*Poller)

// WithInterval changes the pause between polls. The poll budget stays
// maxSeconds*PollsPerSecond.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithSleep replaces time.Sleep.
func WithSleep(sleep func(time.Duration)) PollerOption {
	return func(p *Poller) { p.sleep = sleep }
}

func WithLogger(log logrus.FieldLogger) PollerOption {
	return func(p *Poller) { p.log = log }
}

func NewPoller(runner Runner, opts ...PollerOption) *Poller {
	p := &Poller{
		runner:   runner,
		interval: DefaultInterval,
		sleep:    time.Sleep,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExistenceScript reports "exists" or "not_exists" for path.
func ExistenceScript(path string) Script {
	return Sh("test", "-e", path).And(Sh("echo", existsMarker)).Or(Sh("echo", notExistsMarker))
}

// SizeScript prints the byte size of path, or 0 when it is not a regular file.
func SizeScript(path string) Script {
	return Sh("test", "-f", path).And(Sh("stat", "-c%s", path)).Or(Sh("echo", "0"))
}

// WaitForExistence polls until path exists on the remote node.
func (p *Poller) WaitForExistence(ctx context.Context, path string, maxSeconds int) error {
	if maxSeconds <= 0 {
		return &InvalidArgumentError{Name: "max seconds", Value: strconv.Itoa(maxSeconds), Reason: "must be positive"}
	}
	return p.poll(ctx, path, ExistenceScript(path).Request(), maxSeconds, func(env *Envelope) bool {
		return strings.TrimSpace(env.Message) == existsMarker
	})
}

// WaitForSize polls until path holds at least size bytes, where size is
// written like "5gb". A malformed size fails before any poll.
func (p *Poller) WaitForSize(ctx context.Context, path, size string, maxSeconds int) error {
	target, err := ParseSize(size)
	if err != nil {
		return err
	}
	if maxSeconds <= 0 {
		return &InvalidArgumentError{Name: "max seconds", Value: strconv.Itoa(maxSeconds), Reason: "must be positive"}
	}
	return p.poll(ctx, path, SizeScript(path).Request(), maxSeconds, func(env *Envelope) bool {
		got, err := strconv.ParseInt(strings.TrimSpace(env.Message), 10, 64)
		return err == nil && got >= target
	})
}

func (p *Poller) poll(ctx context.Context, path string, req Request, maxSeconds int, done func(*Envelope) bool) error {
	polls := maxSeconds * PollsPerSecond
	for i := 1; i <= polls; i++ {
		env, err := p.runner.Run(ctx, req)
		if err != nil {
			return err
		}
		if done(env) {
			p.log.WithFields(logrus.Fields{"path": path, "polls": i}).Debug("poll condition met")
			return nil
		}
		p.log.WithFields(logrus.Fields{"path": path, "poll": i, "message": strings.TrimSpace(env.Message)}).Debug("poll condition not met")
		if i < polls {
			p.sleep(p.interval)
		}
	}
	return &TimeoutError{Path: path, Polls: polls, After: time.Duration(maxSeconds) * time.Second}
}

// ParseSize converts "<digits>gb" (any case) to bytes, 1gb being 1024^3.
func ParseSize(size string) (int64, error) {
	matches := sizePattern.FindStringSubmatch(size)
	if matches == nil {
		return 0, &InvalidArgumentError{Name: "size", Value: size, Reason: "use formats like 1gb, 5gb"}
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || n > math.MaxInt64>>30 {
		return 0, &InvalidArgumentError{Name: "size", Value: size, Reason: "out of range"}
	}
	return n << 30, nil
}
