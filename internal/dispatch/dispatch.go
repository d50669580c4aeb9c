// Package dispatch fans a completed spot record out to its destination
// clients and aggregates one delivery report per attempt. Destinations
// are isolated: one failing, hanging, or panicking client never blocks
// or skips another.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spotterlabs/talkspot/internal/spot"
)

// Sentinel failures a destination client may return from Post. Anything
// else is reported with the raw error text.
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrAuthExpired  = errors.New("authentication expired")
	ErrUnreachable  = errors.New("network unreachable")
)

// RemoteError carries a rejection message from the destination service.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "rejected by remote: " + e.Message
}

// Client is the narrow contract every destination adapter implements.
type Client interface {
	Post(ctx context.Context, rec spot.Record) error
}

// Outcome is a delivery's terminal status.
type Outcome int

const (
	Success Outcome = iota
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Canonical reason strings used in delivery reports.
const (
	ReasonDryRun        = "dry-run"
	ReasonNotApplicable = "not-applicable"
	ReasonDisabled      = "destination disabled"
	ReasonAuthRequired  = "authentication-required"
	ReasonAuthExpired   = "authentication-expired"
	ReasonUnreachable   = "network-unreachable"
)

// Delivery is one destination's outcome. Outcomes are never collapsed
// into a single pass/fail for the record.
type Delivery struct {
	Destination spot.Destination
	Outcome     Outcome
	Reason      string
}

// Report collects every delivery attempted for one spot record.
type Report struct {
	SpotID     string
	Deliveries []Delivery
}

// Options configures dispatch behavior.
type Options struct {
	// Timeout bounds each destination call; an expired call is reported
	// as failed network-unreachable.
	Timeout time.Duration
	// DryRun short-circuits every post into Skipped(dry-run) while the
	// decode/build/classify path stays identical.
	DryRun bool
}

// Dispatcher owns the destination table for the run.
type Dispatcher struct {
	clients     map[spot.Destination]Client
	unavailable map[spot.Destination]string
	timeout     time.Duration
	dryRun      bool
	log         *slog.Logger
	outcomes    metric.Int64Counter
}

func New(opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		clients:     make(map[spot.Destination]Client),
		unavailable: make(map[spot.Destination]string),
		timeout:     opts.Timeout,
		dryRun:      opts.DryRun,
		log:         logger.With(slog.String("component", "dispatch")),
	}
	meter := otel.Meter("github.com/spotterlabs/talkspot/dispatch")
	counter, err := meter.Int64Counter("talkspot.dispatch.outcomes",
		metric.WithDescription("Delivery outcomes per destination"))
	if err != nil {
		d.log.Warn("failed to create outcome counter", slog.String("error", err.Error()))
	} else {
		d.outcomes = counter
	}
	return d
}

// Register installs the client for a destination.
func (d *Dispatcher) Register(dest spot.Destination, client Client) {
	d.clients[dest] = client
}

// MarkUnavailable records a startup configuration error for a destination.
// Every spot addressing it is reported Skipped with the reason instead of
// retrying a client that can never work this run.
func (d *Dispatcher) MarkUnavailable(dest spot.Destination, reason string) {
	d.unavailable[dest] = reason
}

// Dispatch posts the record to each destination in its set, in parallel,
// and returns once every outcome is collected.
func (d *Dispatcher) Dispatch(ctx context.Context, rec spot.Record) Report {
	deliveries := make([]Delivery, len(rec.Destinations))
	var wg sync.WaitGroup
	for i, dest := range rec.Destinations {
		if d.dryRun {
			deliveries[i] = Delivery{Destination: dest, Outcome: Skipped, Reason: ReasonDryRun}
			continue
		}
		if reason, ok := d.unavailable[dest]; ok {
			deliveries[i] = Delivery{Destination: dest, Outcome: Skipped, Reason: reason}
			continue
		}
		client, ok := d.clients[dest]
		if !ok {
			deliveries[i] = Delivery{Destination: dest, Outcome: Skipped, Reason: ReasonDisabled}
			continue
		}
		wg.Add(1)
		go func(i int, dest spot.Destination, client Client) {
			defer wg.Done()
			deliveries[i] = d.post(ctx, dest, client, rec)
		}(i, dest, client)
	}
	wg.Wait()

	for _, del := range deliveries {
		d.record(ctx, rec, del)
	}
	return Report{SpotID: rec.ID, Deliveries: deliveries}
}

// WouldPost reports which destinations a record would address, without
// invoking any client: applicable destinations come back Skipped(dry-run),
// the rest Skipped(not-applicable).
func (d *Dispatcher) WouldPost(rec spot.Record) Report {
	var deliveries []Delivery
	for _, dest := range spot.All() {
		reason := ReasonNotApplicable
		if rec.HasDestination(dest) {
			reason = ReasonDryRun
		}
		deliveries = append(deliveries, Delivery{Destination: dest, Outcome: Skipped, Reason: reason})
	}
	return Report{SpotID: rec.ID, Deliveries: deliveries}
}

func (d *Dispatcher) post(ctx context.Context, dest spot.Destination, client Client, rec spot.Record) (del Delivery) {
	del = Delivery{Destination: dest, Outcome: Success}
	// Adapter faults become Failed values, never a fault that reaches
	// sibling destinations.
	defer func() {
		if r := recover(); r != nil {
			del.Outcome = Failed
			del.Reason = fmt.Sprintf("adapter panic: %v", r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := client.Post(cctx, rec); err != nil {
		del.Outcome = Failed
		del.Reason = classify(err)
	}
	return del
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUnreachable):
		return ReasonUnreachable
	case errors.Is(err, ErrAuthRequired):
		return ReasonAuthRequired
	case errors.Is(err, ErrAuthExpired):
		return ReasonAuthExpired
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return "rejected-by-remote: " + remote.Message
	}
	return err.Error()
}

func (d *Dispatcher) record(ctx context.Context, rec spot.Record, del Delivery) {
	if d.outcomes != nil {
		d.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("destination", del.Destination.String()),
			attribute.String("outcome", del.Outcome.String()),
		))
	}
	attrs := []any{
		slog.String("spot_id", rec.ID),
		slog.String("callsign", rec.Callsign),
		slog.String("destination", del.Destination.String()),
		slog.String("outcome", del.Outcome.String()),
	}
	if del.Reason != "" {
		attrs = append(attrs, slog.String("reason", del.Reason))
	}
	if del.Outcome == Failed {
		d.log.Warn("spot delivery failed", attrs...)
	} else {
		d.log.Info("spot delivery", attrs...)
	}
}
