// Package client talks to the HTTP control API ("smoip") that StreamMagic
// devices expose on port 80. Every operation is a single request/response;
// the device keeps no session.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoHost is returned when an operation is attempted without a
	// device host configured.
	ErrNoHost = errors.New("no device host configured")

	// ErrUnknownAction is returned by ControlPlayback for an action the
	// device does not understand.
	ErrUnknownAction = errors.New("unknown playback action")
)

// APIError is a collaborator-reported error: the device answered, but with
// a non-OK status or an error payload.
type APIError struct {
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("device error on %s: %s (HTTP %d)", e.Path, e.Message, e.Status)
	}
	return fmt.Sprintf("device error on %s: HTTP %d", e.Path, e.Status)
}

// Client issues control requests against one device host.
type Client struct {
	host       string
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a client for the given device host (IP address or hostname).
func New(host string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Host returns the device host this client is bound to.
func (c *Client) Host() string {
	return c.host
}

// envelope is the wrapper the smoip API puts around every response.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.host == "" {
		return ErrNoHost
	}

	u := url.URL{
		Scheme:   "http",
		Host:     c.host,
		Path:     path,
		RawQuery: params.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	c.log.Debug("device request", zap.String("host", c.host), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("device unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading device response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The envelope decode is best effort here: error pages are not
		// always JSON, and the status alone classifies the failure.
		var env envelope
		_ = json.Unmarshal(body, &env)
		return &APIError{Path: path, Status: resp.StatusCode, Message: env.Message}
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("invalid device response on %s: %w", path, err)
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("invalid device payload on %s: %w", path, err)
		}
	}

	return nil
}

// GetInfo returns static device information.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.get(ctx, "/smoip/system/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetState returns the current zone state (power, source, volume, mute).
func (c *Client) GetState(ctx context.Context) (*State, error) {
	var state State
	if err := c.get(ctx, "/smoip/zone/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetNowPlaying returns the current playback details. The metadata field
// is nil when the device is idle.
func (c *Client) GetNowPlaying(ctx context.Context) (*PlayState, error) {
	var ps PlayState
	if err := c.get(ctx, "/smoip/zone/play_state", nil, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

// ListSources returns the available input sources.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var payload struct {
		Sources []Source `json:"sources"`
	}
	if err := c.get(ctx, "/smoip/system/sources", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Sources, nil
}

// SetPower turns the device on, or puts it into network standby.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	params := url.Values{}
	if on {
		params.Set("power", "ON")
	} else {
		params.Set("power", "NETWORK")
	}
	return c.get(ctx, "/smoip/system/power", params, nil)
}

// SetVolume sets the volume to a percentage between 0 and 100.
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume %d out of range 0-100", percent)
	}
	params := url.Values{}
	params.Set("volume_percent", strconv.Itoa(percent))
	return c.get(ctx, "/smoip/zone/state", params, nil)
}

// SetMute mutes or unmutes the device.
func (c *Client) SetMute(ctx context.Context, mute bool) error {
	params := url.Values{}
	params.Set("mute", strconv.FormatBool(mute))
	return c.get(ctx, "/smoip/zone/state", params, nil)
}

// Playback actions accepted by ControlPlayback.
var playbackActions = map[string]string{
	"play":       "play",
	"pause":      "pause",
	"stop":       "stop",
	"play_pause": "toggle",
	"next":       "skip_next",
	"previous":   "skip_previous",
}

// ControlPlayback executes a transport action: play, pause, stop,
// play_pause, next or previous.
func (c *Client) ControlPlayback(ctx context.Context, action string) error {
	deviceAction, ok := playbackActions[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	params := url.Values{}
	params.Set("action", deviceAction)
	return c.get(ctx, "/smoip/zone/play_control", params, nil)
}

// SetSource switches the input source by ID (e.g. "AIRPLAY", "CAST",
// "SPDIF"). Use ListSources for the available IDs.
func (c *Client) SetSource(ctx context.Context, sourceID string) error {
	params := url.Values{}
	params.Set("source", sourceID)
	return c.get(ctx, "/smoip/zone/state", params, nil)
}

// PlayPreset recalls a stored preset by number.
func (c *Client) PlayPreset(ctx context.Context, preset int) error {
	if preset < 1 {
		return fmt.Errorf("preset %d out of range", preset)
	}
	params := url.Values{}
	params.Set("preset", strconv.Itoa(preset))
	return c.get(ctx, "/smoip/zone/recall_preset", params, nil)
}
