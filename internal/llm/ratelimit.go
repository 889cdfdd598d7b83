package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/models"
)

const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 32 * time.Second
)

// Limiter shares a token bucket and retry policy between every call made
// through it.
type Limiter struct {
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        logger.Logger
}

// NewLimiter creates a limiter from the rate limit settings.
func NewLimiter(cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	return &Limiter{
		limiter:    rate.NewLimiter(rate.Limit(cfg.TokensPerSecond), max(cfg.Burst, 1)),
		maxRetries: max(cfg.MaxRetries, 0),
		baseDelay:  baseRetryDelay,
		maxDelay:   maxRetryDelay,
		log:        log,
	}
}

// RateLimitedCall wraps an API call with rate limiting and retry logic.
// It waits for n tokens before the first attempt and retries with
// exponential backoff while the backend reports it is overloaded.
func RateLimitedCall[T any](ctx context.Context, l *Limiter, n int, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	// a request larger than the bucket would never be admitted
	n = min(max(n, 1), l.limiter.Burst())
	if err := l.limiter.WaitN(ctx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(l.baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > l.maxDelay {
				delay = l.maxDelay
			}

			l.log.Info("Retry attempt %d/%d after %v delay", attempt, l.maxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				l.log.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}

		lastErr = err
		if !isRateLimitError(err) {
			return zero, err
		}

		l.log.Warn("Rate limit error on attempt %d/%d: %v", attempt+1, l.maxRetries+1, err)
	}

	return zero, fmt.Errorf("max retries (%d) exceeded, last error: %w", l.maxRetries, lastErr)
}

// isRateLimitError reports whether the backend asked us to slow down. Only
// typed status errors count; message text is never inspected because decode
// errors quote model output.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.StatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return isRetryableStatus(gErr.Code)
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.ResourceExhausted || st.Code() == codes.Unavailable
	}
	return false
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

type rateLimited struct {
	next    Extractor
	limiter *Limiter
}

// WithRateLimit routes every call to ext through l.
func WithRateLimit(ext Extractor, l *Limiter) Extractor {
	return &rateLimited{next: ext, limiter: l}
}

// Extract implements Extractor.
func (r *rateLimited) Extract(ctx context.Context, req Request) ([]models.Extraction, error) {
	out, err := RateLimitedCall(ctx, r.limiter, 1, func(ctx context.Context) ([]models.Extraction, error) {
		return r.next.Extract(ctx, req)
	})
	if err != nil && !errors.Is(err, errs.ErrModelCall) {
		return nil, errs.ModelCall("rate limited call", err)
	}
	return out, err
}

// Close forwards to the wrapped extractor.
func (r *rateLimited) Close() error {
	return Close(r.next)
}
