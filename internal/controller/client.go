package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// Commands understood by the controller endpoint.
const (
	commandGetDevices = "getdevices"
	commandGet        = "get"
	commandSet        = "set"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Config configures a controller client.
type Config struct {
	// BaseURL is the controller's variable endpoint, e.g. http://192.168.1.20:9000/.
	BaseURL string

	// Timeout bounds each request. Zero uses a 10 second default.
	Timeout time.Duration

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the controller's HTTP variable API.
//
// Every call is a GET on the base URL with a command query parameter.
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a client for the controller at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing base URL: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base URL scheme must be http or https", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{baseURL: u, httpClient: hc, timeout: timeout}, nil
}

// GetDevices lists every proxy on the controller. The response keys are
// proxy IDs; entries are returned in response order, including non-device
// entries such as status flags.
func (c *Client) GetDevices(ctx context.Context) ([]device.RawDevice, error) {
	body, err := c.do(ctx, url.Values{"command": {commandGetDevices}})
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var out []device.RawDevice
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: reading device key: %w", ErrProtocol, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrProtocol, tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: decoding device %s: %w", ErrProtocol, key, err)
		}
		out = append(out, device.RawDevice{Key: key, Body: raw})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVariables reads several variables of one proxy in a single request.
// Duplicate IDs are requested once. Values are returned as text keyed by
// variable ID; JSON numbers and booleans are formatted, nulls are dropped.
func (c *Client) GetVariables(ctx context.Context, proxyID string, variableIDs []string) (device.RawValues, error) {
	ids := dedupe(variableIDs)
	if len(ids) == 0 {
		return device.RawValues{}, nil
	}

	body, err := c.do(ctx, url.Values{
		"command":    {commandGet},
		"proxyID":    {proxyID},
		"variableID": {strings.Join(ids, ",")},
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: decoding variables: %w", ErrProtocol, err)
	}

	out := make(device.RawValues, len(fields))
	for id, v := range fields {
		if text, ok := asText(v); ok {
			out[id] = text
		}
	}
	return out, nil
}

// SetVariable writes one variable. The controller must answer with
// success "true"; anything else is ErrSetRejected, and a body without a
// success field is ErrProtocol.
func (c *Client) SetVariable(ctx context.Context, proxyID, variableID, value string) error {
	body, err := c.do(ctx, url.Values{
		"command":    {commandSet},
		"proxyID":    {proxyID},
		"variableID": {variableID},
		"newValue":   {value},
	})
	if err != nil {
		return err
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: decoding set response: %w", ErrProtocol, err)
	}
	success, ok := resp["success"]
	if !ok {
		return fmt.Errorf("%w: set response has no success field", ErrProtocol)
	}
	if s, isText := success.(string); !isText || s != "true" {
		return fmt.Errorf("%w: proxy %s variable %s: success=%v", ErrSetRejected, proxyID, variableID, success)
	}
	return nil
}

// do issues one command and returns the response body.
func (c *Client) do(ctx context.Context, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, query.Get("command"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrTransport, query.Get("command"), resp.StatusCode)
	}
	return body, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty response", ErrProtocol)
		}
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrProtocol, want, tok)
	}
	return nil
}

func asText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
