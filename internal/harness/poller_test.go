package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers the n-th request with answer(n), n starting at 1.
type scriptedRunner struct {
	requests []Request
	answer   func(n int) (*Envelope, error)
}

func (r *scriptedRunner) Run(_ context.Context, req Request) (*Envelope, error) {
	r.requests = append(r.requests, req)
	return r.answer(len(r.requests))
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPoller(runner Runner) (*Poller, *[]time.Duration) {
	var sleeps []time.Duration
	p := NewPoller(runner,
		WithSleep(func(d time.Duration) { sleeps = append(sleeps, d) }),
		WithLogger(quietLogger()),
	)
	return p, &sleeps
}

func message(msg string) *Envelope {
	return &Envelope{Status: StatusOK, Message: msg}
}

func TestWaitForExistence(t *testing.T) {
	tests := []struct {
		name       string
		appearAt   int
		maxSeconds int
		wantPolls  int
		wantErr    bool
	}{
		{name: "present at once", appearAt: 1, maxSeconds: 10, wantPolls: 1},
		{name: "present after 7 polls", appearAt: 7, maxSeconds: 10, wantPolls: 7},
		{name: "present on last poll", appearAt: 10, maxSeconds: 2, wantPolls: 10},
		{name: "never present", appearAt: -1, maxSeconds: 10, wantPolls: 50, wantErr: true},
		{name: "never present short budget", appearAt: -1, maxSeconds: 1, wantPolls: 5, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runner := &scriptedRunner{answer: func(n int) (*Envelope, error) {
				if test.appearAt > 0 && n >= test.appearAt {
					return message("exists\n"), nil
				}
				return message("not_exists\n"), nil
			}}
			p, sleeps := newTestPoller(runner)

			err := p.WaitForExistence(context.Background(), "/data/users/u1/file.txt", test.maxSeconds)
			require.Len(t, runner.requests, test.wantPolls)
			require.Len(t, *sleeps, test.wantPolls-1)
			for _, d := range *sleeps {
				require.Equal(t, DefaultInterval, d)
			}
			if test.wantErr {
				var timeout *TimeoutError
				require.ErrorAs(t, err, &timeout)
				require.Equal(t, test.wantPolls, timeout.Polls)
				require.Contains(t, err.Error(), "timeout waiting for: /data/users/u1/file.txt")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWaitForExistenceRequest(t *testing.T) {
	runner := &scriptedRunner{answer: func(int) (*Envelope, error) { return message("exists"), nil }}
	p, _ := newTestPoller(runner)

	require.NoError(t, p.WaitForExistence(context.Background(), "/srv/it's here", DefaultExistenceTimeout))
	require.Equal(t, []Request{{
		Command: `test -e '/srv/it'\''s here' && echo exists || echo not_exists`,
		Raw:     true,
	}}, runner.requests)
}

func TestWaitForExistenceTransportErrorNotRetried(t *testing.T) {
	boom := &TransportError{Op: "POST /command", Err: errors.New("connection refused")}
	runner := &scriptedRunner{answer: func(int) (*Envelope, error) { return nil, boom }}
	p, sleeps := newTestPoller(runner)

	err := p.WaitForExistence(context.Background(), "/x", 10)
	require.ErrorIs(t, err, boom)
	require.Len(t, runner.requests, 1)
	require.Empty(t, *sleeps)
}

func TestWaitForExistenceRejectsEmptyBudget(t *testing.T) {
	runner := &scriptedRunner{answer: func(int) (*Envelope, error) { return message("exists"), nil }}
	p, _ := newTestPoller(runner)

	var invalid *InvalidArgumentError
	require.ErrorAs(t, p.WaitForExistence(context.Background(), "/x", 0), &invalid)
	require.Empty(t, runner.requests)
}

func TestWaitForSize(t *testing.T) {
	const twoGB = int64(2147483648)

	runner := &scriptedRunner{answer: func(n int) (*Envelope, error) {
		switch n {
		case 1:
			return message("0\n"), nil
		case 2:
			return message(fmt.Sprintf("%d\n", twoGB-1)), nil
		default:
			return message(fmt.Sprintf("%d\n", twoGB)), nil
		}
	}}
	p, sleeps := newTestPoller(runner)

	err := p.WaitForSize(context.Background(), "/data/big.bin", "2gb", DefaultSizeTimeout)
	require.NoError(t, err)
	require.Len(t, runner.requests, 3)
	require.Len(t, *sleeps, 2)
	require.Equal(t, Request{
		Command: `test -f /data/big.bin && stat -c%s /data/big.bin || echo 0`,
		Raw:     true,
	}, runner.requests[0])
}

func TestWaitForSizeTimeout(t *testing.T) {
	runner := &scriptedRunner{answer: func(int) (*Envelope, error) { return message("1073741824"), nil }}
	p, _ := newTestPoller(runner)

	err := p.WaitForSize(context.Background(), "/data/big.bin", "2GB", 3)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Len(t, runner.requests, 15)
}

func TestWaitForSizeIgnoresNoise(t *testing.T) {
	runner := &scriptedRunner{answer: func(n int) (*Envelope, error) {
		if n == 1 {
			return message("stat: cannot stat"), nil
		}
		return message("1073741824"), nil
	}}
	p, _ := newTestPoller(runner)

	require.NoError(t, p.WaitForSize(context.Background(), "/data/f", "1gb", 1))
	require.Len(t, runner.requests, 2)
}

func TestWaitForSizeInvalidSize(t *testing.T) {
	for _, size := range []string{"", "gb", "2", "2 gb", "2mb", "-1gb", "1.5gb", " 2gb", "2gbs", "99999999999999999999gb"} {
		t.Run(size, func(t *testing.T) {
			runner := &scriptedRunner{answer: func(int) (*Envelope, error) { return message("0"), nil }}
			p, sleeps := newTestPoller(runner)

			err := p.WaitForSize(context.Background(), "/data/f", size, DefaultSizeTimeout)
			var invalid *InvalidArgumentError
			require.ErrorAs(t, err, &invalid)
			require.Empty(t, runner.requests)
			require.Empty(t, *sleeps)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		size string
		want int64
	}{
		{"0gb", 0},
		{"1gb", 1 << 30},
		{"2gb", 2147483648},
		{"5GB", 5 * 1024 * 1024 * 1024},
		{"10Gb", 10737418240},
		{"007gb", 7 << 30},
	}
	for _, test := range tests {
		t.Run(test.size, func(t *testing.T) {
			got, err := ParseSize(test.size)
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}
