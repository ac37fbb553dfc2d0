package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff"
)

// retryBackoff rides out a momentary connection drop; it is not meant to
// wait out a real outage, so the initial interval is short.
func retryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}

// isTransient reports whether err looks like a dropped-connection error
// rather than a query/logic error, the only class spec 7's StorageError
// retry is meant to paper over.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// withRetry runs op once, and again after a short backoff if the first
// attempt failed with a transient connection error (spec 7: "StorageError
// ... internally retried once with backoff before surfacing").
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(retryBackoff(), 1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
