package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// OpenWithBackoff opens path, retrying with exponential backoff while the
// device is absent or busy (a bring-up bench commonly loses and regains
// its USB-serial adapter across target power cycles). It gives up only
// when ctx is cancelled. This retries the transport's *open*, never the
// UART-DAP wire protocol itself — the core engine still performs no
// retransmission or acknowledgement of its own.
func OpenWithBackoff(ctx context.Context, log *logrus.Entry, path string, baud int) (Port, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0 // retry until ctx is cancelled

	var port Port
	operation := func() error {
		p, err := OpenSerial(log, path, baud)
		if err != nil {
			return err
		}
		port = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retryIn", wait).Warn("failed to open serial port, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		return nil, err
	}
	return port, nil
}
