// Package dxcluster posts spots to a DX cluster node over its telnet
// line protocol: connect, answer the login prompt with the spotter
// callsign, issue a DX command, say BYE.
package dxcluster

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/spot"
)

type Client struct {
	addr     string
	callsign string
	comment  string
	timeout  time.Duration
	log      *slog.Logger
}

func New(cfg config.DXClusterConfig, spotterCallsign, comment string, log *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		callsign: strings.ToUpper(spotterCallsign),
		comment:  comment,
		timeout:  timeout,
		log:      log,
	}
}

// Post opens a fresh connection per spot. Cluster nodes drop idle
// telnet sessions aggressively, so holding one open buys nothing.
func (c *Client) Post(ctx context.Context, rec spot.Record) error {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", dispatch.ErrUnreachable, c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	// Login prompt, then our callsign.
	if _, err := readUntilPrompt(conn); err != nil {
		return fmt.Errorf("%w: read login prompt: %v", dispatch.ErrUnreachable, err)
	}
	if err := sendLine(conn, c.callsign); err != nil {
		return fmt.Errorf("%w: send login: %v", dispatch.ErrUnreachable, err)
	}
	if _, err := readUntilPrompt(conn); err != nil {
		return fmt.Errorf("%w: read login response: %v", dispatch.ErrUnreachable, err)
	}

	cmd := fmt.Sprintf("DX %.1f %s", rec.FrequencyKHz, strings.ToUpper(rec.Callsign))
	if c.comment != "" {
		cmd += " " + c.comment
	}
	if err := sendLine(conn, cmd); err != nil {
		return fmt.Errorf("%w: send spot: %v", dispatch.ErrUnreachable, err)
	}
	response, err := readUntilPrompt(conn)
	if err != nil {
		return fmt.Errorf("%w: read spot response: %v", dispatch.ErrUnreachable, err)
	}
	if rejected(response) {
		return &dispatch.RemoteError{Message: strings.TrimSpace(response)}
	}

	c.log.Debug("dx cluster spot accepted",
		slog.String("callsign", rec.Callsign),
		slog.Float64("frequency_khz", rec.FrequencyKHz))

	// Best effort; the spot already landed.
	_ = sendLine(conn, "BYE")
	return nil
}

func sendLine(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// readUntilPrompt accumulates output until the node shows a prompt,
// conventionally a line ending in '>' or ':'.
func readUntilPrompt(conn net.Conn) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
			text := strings.TrimRight(sb.String(), " \r\n\t")
			if strings.HasSuffix(text, ">") || strings.HasSuffix(text, ":") {
				return sb.String(), nil
			}
		}
		if err != nil {
			if sb.Len() > 0 {
				// Some nodes close or pause without a prompt; whatever
				// arrived is the response.
				return sb.String(), nil
			}
			return "", err
		}
	}
}

// rejected spots a node-side refusal in the response text. Cluster
// software varies, but refusals consistently mention the failed command
// or an invalid field.
func rejected(response string) bool {
	lower := strings.ToLower(response)
	return strings.Contains(lower, "invalid") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "not allowed")
}
