// Demo walks the admission gate through its states in-process, with no
// network or API key: quota exhaustion on a small per-minute limit, then the
// breaker opening against a scripted failing provider and recovering.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/wrenchgate/breaker"
	"github.com/yourusername/wrenchgate/clock"
	"github.com/yourusername/wrenchgate/gate"
	"github.com/yourusername/wrenchgate/llm"
	"github.com/yourusername/wrenchgate/ratelimit"
	"github.com/yourusername/wrenchgate/validator"
)

// scriptedProvider fails for the first failUntil calls, then succeeds.
type scriptedProvider struct {
	calls     int
	failUntil int
}

func (p *scriptedProvider) Complete(_ context.Context, _ []llm.Message) (string, error) {
	p.calls++
	if p.calls <= p.failUntil {
		return "", errors.New("upstream timeout")
	}
	return "Drain the old oil, replace the filter, and refill to spec.", nil
}

func main() {
	clk := clock.NewVirtualClock(time.Now())

	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxPerMinute: 3, MaxPerHour: 100}, clk)
	if err != nil {
		log.Fatal(err)
	}
	cb := breaker.New(2, 30*time.Second, clk)
	g, err := gate.New(limiter, validator.New(validator.Config{}), cb)
	if err != nil {
		log.Fatal(err)
	}

	provider := &scriptedProvider{failUntil: 2}
	ctx := context.Background()
	query := "How do I change my motorcycle oil?"

	fmt.Println("=== quota exhaustion (3/min) ===")
	for i := 1; i <= 4; i++ {
		d, _ := g.Process(ctx, "rider-1", query)
		fmt.Printf("request %d: %s (remaining %d/min, reset in %ds)\n",
			i, d.Outcome, d.RateLimit.RemainingMinute, d.RateLimit.ResetInSeconds)
		if d.Allowed() {
			g.ReportSuccess() // pretend the upstream answered
		}
	}

	fmt.Println("\n=== breaker opens after consecutive upstream failures ===")
	clk.Advance(time.Minute + time.Second)
	for i := 1; i <= 3; i++ {
		d, _ := g.Process(ctx, fmt.Sprintf("rider-%d", i+1), query)
		if !d.Allowed() {
			fmt.Printf("call %d: gate said %s\n", i, d.Outcome)
			continue
		}
		if _, err := provider.Complete(ctx, nil); err != nil {
			g.ReportFailure()
			fmt.Printf("call %d: upstream failed, reported to breaker (state %s)\n", i, cb.State())
		} else {
			g.ReportSuccess()
		}
	}

	fmt.Println("\n=== recovery probe after the open timeout ===")
	clk.Advance(31 * time.Second)
	d, _ := g.Process(ctx, "rider-9", query)
	fmt.Printf("probe admitted: %v (state %s)\n", d.Allowed(), cb.State())
	if d.Allowed() {
		if _, err := provider.Complete(ctx, nil); err != nil {
			g.ReportFailure()
		} else {
			g.ReportSuccess()
		}
	}
	fmt.Printf("breaker state after probe outcome: %s\n", cb.State())

	stats := cb.Stats()
	fmt.Printf("\nbreaker totals: %d requests, %d failures\n", stats.TotalRequests, stats.TotalFailures)
}
