package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spotterlabs/talkspot/internal/command"
	"github.com/spotterlabs/talkspot/internal/spot"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubClient struct {
	err   error
	calls int
	block time.Duration
	panic bool
}

func (c *stubClient) Post(ctx context.Context, _ spot.Record) error {
	c.calls++
	if c.panic {
		panic("adapter bug")
	}
	if c.block > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.block):
		}
	}
	return c.err
}

func testRecord(dests ...spot.Destination) spot.Record {
	return spot.Record{
		ID:           "spot-1",
		Callsign:     "W1AW",
		FrequencyKHz: 14219,
		Mode:         "SSB",
		Ref:          &command.ActivationRef{Org: command.OrgPOTA, Code: "K-1234"},
		Destinations: dests,
	}
}

func outcomeFor(t *testing.T, rep Report, dest spot.Destination) Delivery {
	t.Helper()
	for _, del := range rep.Deliveries {
		if del.Destination == dest {
			return del
		}
	}
	t.Fatalf("no delivery for %v in %+v", dest, rep.Deliveries)
	return Delivery{}
}

func TestDispatchIsolation(t *testing.T) {
	dx := &stubClient{err: ErrUnreachable}
	pota := &stubClient{}
	d := New(Options{}, newLogger())
	d.Register(spot.DXCluster, dx)
	d.Register(spot.POTA, pota)

	rep := d.Dispatch(context.Background(), testRecord(spot.DXCluster, spot.POTA))
	if len(rep.Deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(rep.Deliveries))
	}
	del := outcomeFor(t, rep, spot.DXCluster)
	if del.Outcome != Failed || del.Reason != ReasonUnreachable {
		t.Fatalf("dxcluster delivery = %+v", del)
	}
	del = outcomeFor(t, rep, spot.POTA)
	if del.Outcome != Success {
		t.Fatalf("pota delivery = %+v", del)
	}
	if pota.calls != 1 {
		t.Fatalf("pota posted %d times", pota.calls)
	}
}

func TestDispatchOnlyAddressesRecordDestinations(t *testing.T) {
	dx := &stubClient{}
	pota := &stubClient{}
	d := New(Options{}, newLogger())
	d.Register(spot.DXCluster, dx)
	d.Register(spot.POTA, pota)

	rep := d.Dispatch(context.Background(), testRecord(spot.DXCluster))
	if len(rep.Deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %+v", rep.Deliveries)
	}
	if pota.calls != 0 {
		t.Fatal("pota must not be attempted for a plain spot")
	}
}

func TestDryRunNeverPosts(t *testing.T) {
	dx := &stubClient{}
	pota := &stubClient{}
	d := New(Options{DryRun: true}, newLogger())
	d.Register(spot.DXCluster, dx)
	d.Register(spot.POTA, pota)

	rep := d.Dispatch(context.Background(), testRecord(spot.DXCluster, spot.POTA))
	for _, del := range rep.Deliveries {
		if del.Outcome != Skipped || del.Reason != ReasonDryRun {
			t.Fatalf("dry-run delivery = %+v", del)
		}
	}
	if dx.calls != 0 || pota.calls != 0 {
		t.Fatal("dry-run must not invoke any client")
	}
}

func TestTimeoutReportedAsUnreachable(t *testing.T) {
	slow := &stubClient{block: time.Second}
	d := New(Options{Timeout: 20 * time.Millisecond}, newLogger())
	d.Register(spot.DXCluster, slow)

	start := time.Now()
	rep := d.Dispatch(context.Background(), testRecord(spot.DXCluster))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dispatch blocked for %v", elapsed)
	}
	del := outcomeFor(t, rep, spot.DXCluster)
	if del.Outcome != Failed || del.Reason != ReasonUnreachable {
		t.Fatalf("delivery = %+v", del)
	}
}

func TestAdapterPanicBecomesFailure(t *testing.T) {
	d := New(Options{}, newLogger())
	d.Register(spot.DXCluster, &stubClient{panic: true})
	d.Register(spot.POTA, &stubClient{})

	rep := d.Dispatch(context.Background(), testRecord(spot.DXCluster, spot.POTA))
	if del := outcomeFor(t, rep, spot.DXCluster); del.Outcome != Failed {
		t.Fatalf("panicking adapter delivery = %+v", del)
	}
	if del := outcomeFor(t, rep, spot.POTA); del.Outcome != Success {
		t.Fatalf("sibling delivery = %+v", del)
	}
}

func TestUnavailableDestinationSkipped(t *testing.T) {
	d := New(Options{}, newLogger())
	d.Register(spot.DXCluster, &stubClient{})
	d.MarkUnavailable(spot.SOTA, "sota: not authenticated")

	rec := testRecord(spot.DXCluster, spot.SOTA)
	rep := d.Dispatch(context.Background(), rec)
	del := outcomeFor(t, rep, spot.SOTA)
	if del.Outcome != Skipped || del.Reason != "sota: not authenticated" {
		t.Fatalf("unavailable delivery = %+v", del)
	}
	if del := outcomeFor(t, rep, spot.DXCluster); del.Outcome != Success {
		t.Fatalf("configured destination delivery = %+v", del)
	}
}

func TestMissingClientSkipped(t *testing.T) {
	d := New(Options{}, newLogger())
	rep := d.Dispatch(context.Background(), testRecord(spot.POTA))
	del := outcomeFor(t, rep, spot.POTA)
	if del.Outcome != Skipped || del.Reason != ReasonDisabled {
		t.Fatalf("delivery = %+v", del)
	}
}

func TestWouldPost(t *testing.T) {
	d := New(Options{}, newLogger())
	rep := d.WouldPost(testRecord(spot.DXCluster, spot.POTA))
	if len(rep.Deliveries) != len(spot.All()) {
		t.Fatalf("expected an entry per destination, got %+v", rep.Deliveries)
	}
	if del := outcomeFor(t, rep, spot.POTA); del.Reason != ReasonDryRun {
		t.Fatalf("pota = %+v", del)
	}
	if del := outcomeFor(t, rep, spot.SOTA); del.Reason != ReasonNotApplicable {
		t.Fatalf("sota = %+v", del)
	}
}

func TestClassifyAuthFailures(t *testing.T) {
	if got := classify(ErrAuthRequired); got != ReasonAuthRequired {
		t.Fatalf("classify(ErrAuthRequired) = %q", got)
	}
	if got := classify(errors.Join(ErrAuthExpired)); got != ReasonAuthExpired {
		t.Fatalf("classify(wrapped ErrAuthExpired) = %q", got)
	}
	if got := classify(&RemoteError{Message: "no such park"}); got != "rejected-by-remote: no such park" {
		t.Fatalf("classify(remote) = %q", got)
	}
}
