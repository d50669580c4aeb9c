package pota

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spotterlabs/talkspot/internal/command"
	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/spot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func parkRecord() spot.Record {
	return spot.Record{
		Callsign:     "w1aw",
		FrequencyKHz: 14250,
		Mode:         "ssb",
		Ref:          &command.ActivationRef{Org: command.OrgPOTA, Code: "k-1234"},
	}
}

func TestPostSendsExpectedPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(config.POTAConfig{APIURL: srv.URL}, "n0call", "Spotted via TalkSpot", testLogger())
	if err := client.Post(context.Background(), parkRecord()); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	want := map[string]string{
		"activator": "W1AW",
		"spotter":   "N0CALL",
		"frequency": "14250",
		"reference": "K-1234",
		"mode":      "SSB",
		"source":    "TalkSpot",
		"comments":  "Spotted via TalkSpot",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestPostNon200ReturnsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message":"unknown park reference"}`)
	}))
	defer srv.Close()

	client := New(config.POTAConfig{APIURL: srv.URL}, "N0CALL", "", testLogger())
	err := client.Post(context.Background(), parkRecord())
	var remote *dispatch.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Message != "unknown park reference" {
		t.Fatalf("unexpected message %q", remote.Message)
	}
}

func TestPostTransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := New(config.POTAConfig{APIURL: srv.URL}, "N0CALL", "", testLogger())
	err := client.Post(context.Background(), parkRecord())
	if !errors.Is(err, dispatch.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestPostWithoutReferenceRejected(t *testing.T) {
	client := New(config.POTAConfig{APIURL: "http://127.0.0.1:0"}, "N0CALL", "", testLogger())
	rec := parkRecord()
	rec.Ref = nil
	var remote *dispatch.RemoteError
	if err := client.Post(context.Background(), rec); !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError for missing reference, got %v", err)
	}
}
