package renatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const waitTimeoutSeconds = 60

// Client talks to a renat server on behalf of one shared secret. It is
// safe for concurrent use: the underlying *http.Client pools and
// reuses connections per host the way a persistent connection pool
// would.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithProxyURL routes all requests through the given proxy, mirroring
// how a connection pool can be told to chain through an upstream
// proxy instead of dialing the origin directly.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(c *Client) {
		if t, ok := c.http.Transport.(*http.Transport); ok {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
}

// WithHTTPClient overrides the pooled *http.Client entirely, mainly
// for tests that want to point at an httptest.Server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a Client for baseURL (e.g. "http://localhost:8888") using
// secret as the shared key for both record-id derivation and value
// encryption.
func New(baseURL string, secret []byte, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Transport: transport, Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type putResponse struct {
	RecordID      string `json:"record_id"`
	RecordVersion int64  `json:"record_version"`
}

type getResponse struct {
	RecordID      string `json:"record_id"`
	RecordVersion int64  `json:"record_version"`
	Value         string `json:"value"`
}

// Put encrypts value under key and stores it as a new version, using a
// fresh UUID as the idempotency token.
func (c *Client) Put(ctx context.Context, key, value []byte) (int64, error) {
	recordID := deriveRecordID(c.secret, key)
	sealed, err := sealValue(c.secret, value)
	if err != nil {
		return 0, err
	}

	form := url.Values{
		"idepo": {uuid.NewString()},
		"data":  {sealed},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rec/"+recordID+"/NEWEST", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp putResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.RecordVersion, nil
}

// Get fetches the value stored at (key, version). If wait is true, the
// request asks the server to block up to 60s for the version to
// appear, and retries once more after a 404 the way the original
// client's failure callback looped back into a fresh request on a
// wait-eligible miss — the server already spent up to 60s blocking, so
// a single extra round trip is enough.
func (c *Client) Get(ctx context.Context, key []byte, version int64, wait bool) ([]byte, error) {
	recordID := deriveRecordID(c.secret, key)
	return c.getPointer(ctx, recordID, strconv.FormatInt(version, 10), wait)
}

// GetOldest fetches the oldest stored version under key.
func (c *Client) GetOldest(ctx context.Context, key []byte, wait bool) (int64, []byte, error) {
	return c.getPointerVersioned(ctx, key, "OLDEST", wait)
}

// GetNewest fetches the newest stored version under key.
func (c *Client) GetNewest(ctx context.Context, key []byte, wait bool) (int64, []byte, error) {
	return c.getPointerVersioned(ctx, key, "NEWEST", wait)
}

func (c *Client) getPointerVersioned(ctx context.Context, key []byte, pointer string, wait bool) (int64, []byte, error) {
	recordID := deriveRecordID(c.secret, key)
	resp, err := c.getRaw(ctx, recordID, pointer, wait)
	if err != nil {
		return 0, nil, err
	}
	plaintext, err := openValue(c.secret, resp.Value)
	if err != nil {
		return 0, nil, err
	}
	return resp.RecordVersion, plaintext, nil
}

func (c *Client) getPointer(ctx context.Context, recordID, pointer string, wait bool) ([]byte, error) {
	resp, err := c.getRaw(ctx, recordID, pointer, wait)
	if err != nil {
		return nil, err
	}
	return openValue(c.secret, resp.Value)
}

func (c *Client) getRaw(ctx context.Context, recordID, pointer string, wait bool) (*getResponse, error) {
	resp, err := c.getOnce(ctx, recordID, pointer, wait)
	if errors.Is(err, ErrNotFound) && wait {
		resp, err = c.getOnce(ctx, recordID, pointer, wait)
	}
	return resp, err
}

func (c *Client) getOnce(ctx context.Context, recordID, pointer string, wait bool) (*getResponse, error) {
	u := fmt.Sprintf("%s/rec/%s/%s", c.baseURL, recordID, pointer)
	if wait {
		u += fmt.Sprintf("?timeout=%d", waitTimeoutSeconds)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp getResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ErrNotFound is returned when the server responds 404 to a Get call.
var ErrNotFound = fmt.Errorf("renatclient: record not found")

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("renatclient: server responded %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
