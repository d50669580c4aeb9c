// Package pota posts spots to the Parks on the Air API.
package pota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/spot"
)

const userAgent = "TalkSpot/1.0 (https://github.com/spotterlabs/talkspot)"

type Client struct {
	apiURL  string
	spotter string
	comment string
	httpc   *http.Client
	log     *slog.Logger
}

func New(cfg config.POTAConfig, spotterCallsign, comment string, log *slog.Logger) *Client {
	return &Client{
		apiURL:  cfg.APIURL,
		spotter: strings.ToUpper(spotterCallsign),
		comment: comment,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type spotPayload struct {
	Activator string `json:"activator"`
	Spotter   string `json:"spotter"`
	Frequency string `json:"frequency"`
	Reference string `json:"reference"`
	Mode      string `json:"mode"`
	Source    string `json:"source"`
	Comments  string `json:"comments"`
}

func (c *Client) Post(ctx context.Context, rec spot.Record) error {
	if rec.Ref == nil {
		return &dispatch.RemoteError{Message: "spot has no park reference"}
	}

	payload := spotPayload{
		Activator: strings.ToUpper(rec.Callsign),
		Spotter:   c.spotter,
		Frequency: strconv.FormatFloat(rec.FrequencyKHz, 'f', -1, 64),
		Reference: strings.ToUpper(rec.Ref.Code),
		Mode:      strings.ToUpper(rec.Mode),
		Source:    "TalkSpot",
		Comments:  c.comment,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal spot payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build spot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post to %s: %v", dispatch.ErrUnreachable, c.apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.log.Debug("pota spot accepted",
			slog.String("activator", payload.Activator),
			slog.String("reference", payload.Reference))
		return nil
	}
	return &dispatch.RemoteError{Message: remoteMessage(resp)}
}

// remoteMessage digs a human-readable failure out of an API error
// response, falling back to the raw body or status.
func remoteMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "HTTP " + strconv.Itoa(resp.StatusCode)
}
