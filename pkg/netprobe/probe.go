package netprobe

import (
	"context"
	"net"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// DefaultAddress is the well-known endpoint used to gate managed command
// launches on network reachability.
const DefaultAddress = "8.8.8.8:53"

const (
	defaultProbeTimeout = 3 * time.Second
	defaultRetryDelay   = 2 * time.Second
)

// Prober answers a single bounded reachability question.
type Prober interface {
	Probe(ctx context.Context) error
}

type tcpProber struct {
	address string
	timeout time.Duration
}

// NewTCPProber creates a prober that dials the given address once per probe.
// An empty address selects DefaultAddress.
func NewTCPProber(address string, timeout time.Duration) Prober {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &tcpProber{
		address: address,
		timeout: timeout,
	}
}

func (p *tcpProber) Probe(ctx context.Context) error {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return errors.NewNetworkError("reachability probe failed", err).WithContext("address", p.address)
	}
	conn.Close()
	return nil
}

// WaitReachable retries the prober until it succeeds or the ceiling elapses.
// A ceiling expiry returns a timeout error; callers treat it as a warning and
// proceed anyway, so this never blocks a launch indefinitely.
func WaitReachable(ctx context.Context, prober Prober, ceiling time.Duration, logger logging.Logger) error {
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}

	deadline := time.Now().Add(ceiling)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	attempt := 0
	for {
		attempt++
		if err := prober.Probe(ctx); err == nil {
			logger.Debugf("Network reachable, attempts: %d", attempt)
			return nil
		} else {
			logger.Debugf("Network probe failed, attempt: %d, error: %v", attempt, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		delay := defaultRetryDelay
		if delay > remaining {
			delay = remaining
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return errors.NewCancelledError("reachability wait cancelled", ctx.Err())
			}
			return errors.NewTimeoutError("network not reachable within ceiling", ctx.Err()).WithContext("ceiling", ceiling.String())
		}
	}

	return errors.NewTimeoutError("network not reachable within ceiling", nil).WithContext("ceiling", ceiling.String())
}
