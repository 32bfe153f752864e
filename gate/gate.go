// Package gate composes the rate limiter, query validator, and circuit
// breaker into the single admission gate every chat request must pass before
// the upstream provider is invoked. The gate performs no I/O and no retries;
// it only decides.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/wrenchgate/breaker"
	"github.com/yourusername/wrenchgate/ratelimit"
	"github.com/yourusername/wrenchgate/validator"
)

// Outcome classifies a gate decision.
type Outcome int

const (
	// OutcomeAllowed means the caller may invoke the upstream provider and
	// must then report exactly one of ReportSuccess/ReportFailure.
	OutcomeAllowed Outcome = iota

	// OutcomeRateLimited means the client is over quota.
	OutcomeRateLimited

	// OutcomeRejectedQuery means the query failed content validation.
	OutcomeRejectedQuery

	// OutcomeCircuitOpen means the upstream is fenced off.
	OutcomeCircuitOpen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRejectedQuery:
		return "rejected_query"
	case OutcomeCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Decision is the structured result of one admission check. It carries
// everything the transport needs to render a response.
type Decision struct {
	Outcome Outcome

	// RateLimit is the client's quota view. Populated for every outcome the
	// limiter was consulted on (all of them).
	RateLimit ratelimit.Info

	// Reason is the validation-rejection taxonomy value; set only for
	// OutcomeRejectedQuery.
	Reason validator.Reason

	// RetryAfter is how long until the circuit admits a probe; set only for
	// OutcomeCircuitOpen.
	RetryAfter time.Duration

	// Err is the underlying rejection error with its human-readable message;
	// nil for OutcomeAllowed.
	Err error
}

// Allowed reports whether the request passed the whole gate.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Validator is the content-validation stage.
type Validator interface {
	Validate(query string) error
}

// Breaker is the upstream-protection stage.
type Breaker interface {
	Check() error
	RecordSuccess()
	RecordFailure()
}

// Gate runs the three admission stages in fixed order: rate limiter
// check-and-record first (cheapest abuse control), then content validation,
// then the circuit breaker. Each stage short-circuits the rest, so a request
// rejected early never touches the breaker's counters.
type Gate struct {
	limiter   ratelimit.Limiter
	validator Validator
	breaker   Breaker
}

// New creates a Gate. All three stages are required.
func New(limiter ratelimit.Limiter, v Validator, b Breaker) (*Gate, error) {
	if limiter == nil {
		return nil, fmt.Errorf("gate: limiter is required")
	}
	if v == nil {
		return nil, fmt.Errorf("gate: validator is required")
	}
	if b == nil {
		return nil, fmt.Errorf("gate: breaker is required")
	}
	return &Gate{limiter: limiter, validator: v, breaker: b}, nil
}

// Process runs one request through the gate. Admission outcomes, including
// rejections, come back as a Decision with a nil error; a non-nil error means
// the gate itself could not evaluate (for example the Redis limiter backend
// is unreachable).
func (g *Gate) Process(ctx context.Context, key, query string) (Decision, error) {
	info, err := g.limiter.CheckAndRecord(ctx, key)
	if err != nil {
		var exceeded *ratelimit.LimitExceededError
		if errors.As(err, &exceeded) {
			return Decision{
				Outcome:   OutcomeRateLimited,
				RateLimit: exceeded.Info,
				Err:       err,
			}, nil
		}
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	if err := g.validator.Validate(query); err != nil {
		return Decision{
			Outcome:   OutcomeRejectedQuery,
			RateLimit: info,
			Reason:    validator.ReasonFor(err),
			Err:       err,
		}, nil
	}

	if err := g.breaker.Check(); err != nil {
		d := Decision{
			Outcome:   OutcomeCircuitOpen,
			RateLimit: info,
			Err:       err,
		}
		var open *breaker.OpenError
		if errors.As(err, &open) {
			d.RetryAfter = open.RetryAfter
		}
		return d, nil
	}

	return Decision{Outcome: OutcomeAllowed, RateLimit: info}, nil
}

// ReportSuccess reports a successful upstream call for a previously allowed
// request.
func (g *Gate) ReportSuccess() { g.breaker.RecordSuccess() }

// ReportFailure reports a failed upstream call for a previously allowed
// request.
func (g *Gate) ReportFailure() { g.breaker.RecordFailure() }

// Status returns the quota view for key without recording a request.
func (g *Gate) Status(ctx context.Context, key string) (ratelimit.Info, error) {
	return g.limiter.Status(ctx, key)
}
