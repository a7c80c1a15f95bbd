package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"planet/internal/services"
)

const maxErrorBody = 4 << 10

// Timeouts bounds each class of control API call.
type Timeouts struct {
	Control time.Duration
	Pin     time.Duration
	Publish time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Control <= 0 {
		t.Control = 5 * time.Second
	}
	if t.Pin <= 0 {
		t.Pin = 120 * time.Second
	}
	if t.Publish <= 0 {
		t.Publish = 600 * time.Second
	}
	return t
}

// Client calls the daemon control API on the loopback interface.
type Client struct {
	doer      HTTPDoer
	endpoints *Endpoints
	timeouts  Timeouts
}

// NewClient constructs a control API client. A nil doer uses http.DefaultClient.
func NewClient(endpoints *Endpoints, doer HTTPDoer, timeouts Timeouts) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{doer: doer, endpoints: endpoints, timeouts: timeouts.withDefaults()}
}

// Endpoints returns the shared endpoint tracker.
func (c *Client) Endpoints() *Endpoints { return c.endpoints }

// IDInfo is the response of the id command.
type IDInfo struct {
	ID              string   `json:"ID"`
	PublicKey       string   `json:"PublicKey"`
	Addresses       []string `json:"Addresses"`
	AgentVersion    string   `json:"AgentVersion"`
	ProtocolVersion string   `json:"ProtocolVersion"`
}

// VersionInfo is the response of the version command.
type VersionInfo struct {
	Version string `json:"Version"`
	Commit  string `json:"Commit"`
	Repo    string `json:"Repo"`
	System  string `json:"System"`
	Golang  string `json:"Golang"`
}

// RepoStat is the response of repo/stat.
type RepoStat struct {
	RepoSize   int64  `json:"RepoSize"`
	StorageMax int64  `json:"StorageMax"`
	NumObjects int64  `json:"NumObjects"`
	RepoPath   string `json:"RepoPath"`
	Version    string `json:"Version"`
}

// BandwidthStats is the response of stats/bw.
type BandwidthStats struct {
	TotalIn  int64   `json:"TotalIn"`
	TotalOut int64   `json:"TotalOut"`
	RateIn   float64 `json:"RateIn"`
	RateOut  float64 `json:"RateOut"`
}

// Key is one entry of key/list or the result of key/gen.
type Key struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// PublishResult is the response of name/publish.
type PublishResult struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Addresses holds the listener multiaddrs reported by config/show.
type Addresses struct {
	API     []string
	Gateway []string
}

// Online reports whether the control API answers the id command.
func (c *Client) Online(ctx context.Context) bool {
	_, err := c.ID(ctx)
	return err == nil
}

// ID returns the node identity.
func (c *Client) ID(ctx context.Context) (IDInfo, error) {
	var out IDInfo
	err := c.call(ctx, "id", nil, c.timeouts.Control, &out)
	return out, err
}

// Version returns the daemon build information.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var out VersionInfo
	err := c.call(ctx, "version", nil, c.timeouts.Control, &out)
	return out, err
}

// SwarmPeerCount returns the number of connected swarm peers.
func (c *Client) SwarmPeerCount(ctx context.Context) (int, error) {
	var out struct {
		Peers []json.RawMessage `json:"Peers"`
	}
	if err := c.call(ctx, "swarm/peers", nil, c.timeouts.Control, &out); err != nil {
		return 0, err
	}
	return len(out.Peers), nil
}

// RepoStat returns repository usage statistics.
func (c *Client) RepoStat(ctx context.Context) (RepoStat, error) {
	var out RepoStat
	err := c.call(ctx, "repo/stat", nil, c.timeouts.Control, &out)
	return out, err
}

// Bandwidth returns cumulative totals and current transfer rates.
func (c *Client) Bandwidth(ctx context.Context) (BandwidthStats, error) {
	var out BandwidthStats
	err := c.call(ctx, "stats/bw", nil, c.timeouts.Control, &out)
	return out, err
}

// KeyList returns the keys held by the node.
func (c *Client) KeyList(ctx context.Context) ([]Key, error) {
	var out struct {
		Keys []Key `json:"Keys"`
	}
	if err := c.call(ctx, "key/list", nil, c.timeouts.Control, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// KeyGen creates an ed25519 key with the given name.
func (c *Client) KeyGen(ctx context.Context, name string) (Key, error) {
	var out Key
	params := url.Values{"arg": {name}, "type": {"ed25519"}}
	err := c.call(ctx, "key/gen", params, c.timeouts.Control, &out)
	return out, err
}

// KeyRemove deletes the named key.
func (c *Client) KeyRemove(ctx context.Context, name string) error {
	return c.call(ctx, "key/rm", url.Values{"arg": {name}}, c.timeouts.Control, nil)
}

// PinAdd pins the content behind path (for example /ipns/<address>).
func (c *Client) PinAdd(ctx context.Context, path string) error {
	return c.call(ctx, "pin/add", url.Values{"arg": {path}}, c.timeouts.Pin, nil)
}

// NamePublish points the name of key at cid. Offline publishing is allowed so
// a freshly started node without peers still records the update locally.
func (c *Client) NamePublish(ctx context.Context, cid, key string) (PublishResult, error) {
	var out PublishResult
	params := url.Values{
		"arg":           {cid},
		"allow-offline": {"1"},
		"key":           {key},
		"quieter":       {"1"},
	}
	err := c.call(ctx, "name/publish", params, c.timeouts.Publish, &out)
	return out, err
}

// ConfigAddresses returns the API and gateway listener multiaddrs from the
// running daemon's configuration.
func (c *Client) ConfigAddresses(ctx context.Context) (Addresses, error) {
	var out struct {
		Addresses struct {
			API     multiString `json:"API"`
			Gateway multiString `json:"Gateway"`
		} `json:"Addresses"`
	}
	if err := c.call(ctx, "config/show", nil, c.timeouts.Control, &out); err != nil {
		return Addresses{}, err
	}
	return Addresses{API: out.Addresses.API, Gateway: out.Addresses.Gateway}, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, "shutdown", nil, c.timeouts.Control, nil)
}

// WebUIReachable reports whether the daemon serves its web UI, which is the
// readiness signal used before and after a launch.
func (c *Client) WebUIReachable(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeouts.Control)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoints.APIURL()+"/webui/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	resp, err := c.doer.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) call(ctx context.Context, cmd string, params url.Values, timeout time.Duration, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.endpoints.APIURL() + "/api/v0/" + cmd
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ipfs", cmd, "build request", err)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "ipfs", cmd, fmt.Sprintf("no response within %s", timeout), err)
		}
		return services.Wrap(services.ErrTransient, "ipfs", cmd, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return services.Wrap(services.ErrExternalTool, "ipfs", cmd,
			fmt.Sprintf("status %d: %s", resp.StatusCode, apiErrorMessage(body)), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrDecode, "ipfs", cmd, "decode response", err)
	}
	return nil
}

// apiErrorMessage extracts Message from the daemon's JSON error envelope,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(body))
}

// multiString accepts either a single string or an array of strings.
type multiString []string

func (m *multiString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = many
	return nil
}
