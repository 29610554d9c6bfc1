package asyncmc

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// deadRetryBreaker quarantines a server after a connection failure.
// The open state lasts deadRetry; the half-open probe is the next reconnect.
type deadRetryBreaker = gobreaker.TwoStepCircuitBreaker[struct{}]

// newDeadRetryBreaker returns nil when deadRetry is not positive, which
// disables quarantine: every operation retries the connection.
func newDeadRetryBreaker(addr string, deadRetry time.Duration, logger *slog.Logger) *deadRetryBreaker {
	if deadRetry <= 0 {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        addr,
		MaxRequests: 1,
		Timeout:     deadRetry,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("asyncmc: server state changed", "addr", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
}
