// Package sota posts spots to the Summits on the Air API, which requires
// an authenticated session obtained via the SSO device-code flow.
package sota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	comment string
	auth    *Auth
	httpc   *http.Client
	log     *slog.Logger
}

func New(cfg config.SOTAConfig, comment string, auth *Auth, log *slog.Logger) *Client {
	return &Client{
		apiURL:  cfg.APIURL,
		comment: comment,
		auth:    auth,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type spotPayload struct {
	AssociationCode   string `json:"associationCode"`
	SummitCode        string `json:"summitCode"`
	ActivatorCallsign string `json:"activatorCallsign"`
	Frequency         string `json:"frequency"`
	Mode              string `json:"mode"`
	Comments          string `json:"comments"`
	Type              string `json:"type"`
	// ID must be 0 for new spots.
	ID int `json:"id"`
}

func (c *Client) Post(ctx context.Context, rec spot.Record) error {
	if rec.Ref == nil {
		return &dispatch.RemoteError{Message: "spot has no summit reference"}
	}
	association, summit, ok := splitSummitRef(rec.Ref.Code)
	if !ok {
		return &dispatch.RemoteError{Message: fmt.Sprintf("invalid summit reference %q", rec.Ref.Code)}
	}

	if err := c.auth.EnsureValid(ctx); err != nil {
		return err
	}

	payload := spotPayload{
		AssociationCode:   association,
		SummitCode:        summit,
		ActivatorCallsign: strings.ToUpper(rec.Callsign),
		// The API takes MHz, not the kHz the rest of the pipeline uses.
		Frequency: fmt.Sprintf("%.4f", rec.FrequencyKHz/1000),
		Mode:      strings.ToUpper(rec.Mode),
		Comments:  c.comment,
		Type:      "NORMAL",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal spot payload: %w", err)
	}

	resp, err := c.send(ctx, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp)
		// One refresh-and-retry covers an access token that expired
		// between EnsureValid and the request landing.
		if err := c.auth.Refresh(ctx); err != nil {
			if errors.Is(err, dispatch.ErrAuthRequired) || errors.Is(err, dispatch.ErrAuthExpired) {
				return err
			}
			return fmt.Errorf("%w: %v", dispatch.ErrAuthExpired, err)
		}
		resp, err = c.send(ctx, body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			drain(resp)
			return dispatch.ErrAuthExpired
		}
	}
	if resp.StatusCode == http.StatusOK {
		drain(resp)
		c.log.Debug("sota spot accepted",
			slog.String("activator", payload.ActivatorCallsign),
			slog.String("summit", association+"/"+summit))
		return nil
	}
	return &dispatch.RemoteError{Message: remoteMessage(resp)}
}

func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build spot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "bearer "+c.auth.AccessToken())
	req.Header.Set("id_token", c.auth.IDToken())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: post to %s: %v", dispatch.ErrUnreachable, c.apiURL, err)
	}
	return resp, nil
}

// splitSummitRef splits "W4C/CM-001" into association "W4C" and summit
// code "CM-001".
func splitSummitRef(ref string) (association, summit string, ok bool) {
	parts := strings.SplitN(strings.ToUpper(ref), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func remoteMessage(resp *http.Response) string {
	defer resp.Body.Close()
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
