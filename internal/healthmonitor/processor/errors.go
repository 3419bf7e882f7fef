package processor

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/llm-infra/llm-health-monitor/internal/core/resilience"
)

// retryableErrorChecker gates the Result Processor's two read-retry attempts:
// transient network faults and a small set of Postgres connection-class
// error codes are retried, everything else (including constraint violations
// and context cancellation) is treated as terminal.
type retryableErrorChecker struct{}

var _ resilience.RetryableErrorChecker = retryableErrorChecker{}

func (retryableErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isTransientNetworkError(err) || isTimeoutError(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isConnectionClassCode(pgErr.Code)
	}

	return false
}

// isConnectionClassCode reports whether a Postgres SQLSTATE belongs to the
// connection-exception class (08xxx) or one of the handful of other codes
// that indicate the server dropped the connection out from under us.
func isConnectionClassCode(code string) bool {
	switch code {
	case "08000", "08003", "08006", "08001", "08004", "08007",
		"40001", "40P01", "53300", "57P01", "57P02", "57P03":
		return true
	}
	return len(code) >= 2 && code[:2] == "08"
}

func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
