package dxcluster

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/spot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeNode runs a minimal cluster node on a loopback listener. Received
// lines are forwarded on the returned channel.
func fakeNode(t *testing.T, spotResponse string) (config.DXClusterConfig, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		io.WriteString(conn, "Welcome to TEST-CLUSTER\r\nlogin: ")
		login, err := r.ReadString('\n')
		if err != nil {
			return
		}
		lines <- strings.TrimSpace(login)

		io.WriteString(conn, "Hello "+strings.TrimSpace(login)+" >\r\n")
		spotCmd, err := r.ReadString('\n')
		if err != nil {
			return
		}
		lines <- strings.TrimSpace(spotCmd)

		io.WriteString(conn, spotResponse)
		if bye, err := r.ReadString('\n'); err == nil {
			lines <- strings.TrimSpace(bye)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return config.DXClusterConfig{Host: host, Port: port, TimeoutSec: 5}, lines
}

func TestPostSendsLoginAndDXCommand(t *testing.T) {
	cfg, lines := fakeNode(t, "DX spot accepted >\r\n")
	client := New(cfg, "n0call", "Spotted via TalkSpot", testLogger())

	rec := spot.Record{Callsign: "w1aw", FrequencyKHz: 14219}
	if err := client.Post(context.Background(), rec); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	if got := <-lines; got != "N0CALL" {
		t.Fatalf("expected uppercased login, got %q", got)
	}
	if got := <-lines; got != "DX 14219.0 W1AW Spotted via TalkSpot" {
		t.Fatalf("unexpected DX command: %q", got)
	}
	select {
	case got := <-lines:
		if got != "BYE" {
			t.Fatalf("expected BYE, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("node never received BYE")
	}
}

func TestPostFormatsFractionalFrequency(t *testing.T) {
	cfg, lines := fakeNode(t, "ok >\r\n")
	client := New(cfg, "N0CALL", "", testLogger())

	rec := spot.Record{Callsign: "K2XB", FrequencyKHz: 7205.5}
	if err := client.Post(context.Background(), rec); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	<-lines // login
	if got := <-lines; got != "DX 7205.5 K2XB" {
		t.Fatalf("unexpected DX command: %q", got)
	}
}

func TestPostRejectionReturnsRemoteError(t *testing.T) {
	cfg, _ := fakeNode(t, "Invalid callsign >\r\n")
	client := New(cfg, "N0CALL", "", testLogger())

	err := client.Post(context.Background(), spot.Record{Callsign: "W1AW", FrequencyKHz: 14219})
	var remote *dispatch.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(remote.Message, "Invalid callsign") {
		t.Fatalf("rejection text lost: %q", remote.Message)
	}
}

func TestPostUnreachableHost(t *testing.T) {
	// Grab a port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	client := New(config.DXClusterConfig{Host: host, Port: port, TimeoutSec: 1}, "N0CALL", "", testLogger())
	err = client.Post(context.Background(), spot.Record{Callsign: "W1AW", FrequencyKHz: 14219})
	if !errors.Is(err, dispatch.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
