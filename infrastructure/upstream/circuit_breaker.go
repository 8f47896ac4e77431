package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"journal-relay/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

// CircuitBreakerProvider wraps an upstream with one circuit breaker per model.
// It never retries: an open circuit fails the call immediately.
type CircuitBreakerProvider struct {
	upstream chat.UpstreamPort
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewCircuitBreakerProvider(upstream chat.UpstreamPort, config CircuitBreakerConfig) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		upstream: upstream,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// OpenStream implements chat.UpstreamPort. Only opening the stream is guarded;
// failures while the body is being read do not count against the circuit.
func (c *CircuitBreakerProvider) OpenStream(ctx context.Context, req *chat.UpstreamRequest) (io.ReadCloser, error) {
	if !c.config.Enabled {
		return c.upstream.OpenStream(ctx, req)
	}

	model := modelKey(req.Model)
	breaker := c.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.upstream.OpenStream(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State().String(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("circuit breaker open for model %s: %w", model, err)
		}
		return nil, err
	}

	return result.(io.ReadCloser), nil
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerProvider) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State, len(c.breakers))
	for model, breaker := range c.breakers {
		states[model] = breaker.State()
	}
	return states
}

func (c *CircuitBreakerProvider) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[model]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Another goroutine might have created it while we waited
	if breaker, exists := c.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("ai-gateway-%s", model),
		MaxRequests: c.config.MaxRequests,
		Interval:    0,
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.config.FailureThreshold
		},
		IsSuccessful: isHealthyOutcome,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"model":      model,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[model] = breaker

	logrus.WithField("model", model).Info("Created new circuit breaker for model")
	return breaker
}

// isHealthyOutcome treats quota rejections and caller cancellations as a working gateway
func isHealthyOutcome(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *chat.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.IsRateLimited() || statusErr.IsPaymentRequired()
	}
	return false
}

func modelKey(model string) string {
	if model == "" {
		return "default"
	}
	key := strings.ToLower(strings.ReplaceAll(model, "/", "-"))
	return strings.ReplaceAll(key, ".", "-")
}
