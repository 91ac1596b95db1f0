package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bastionhq/bastion/internal/domain"
)

// Client is a thin HTTP client for the control API, used by the CLI.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for a daemon at addr ("127.0.0.1:7177").
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the current combined snapshot.
func (c *Client) Status() (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(http.MethodGet, "/v1/status", nil, &snap)
	return snap, err
}

// StartSession starts a focus session and returns it.
func (c *Client) StartSession(label string, duration time.Duration, hardcore bool) (domain.FocusSession, error) {
	req := map[string]any{
		"label":            label,
		"duration_seconds": int64(duration / time.Second),
		"hardcore":         hardcore,
	}
	var session domain.FocusSession
	err := c.do(http.MethodPost, "/v1/session/start", req, &session)
	return session, err
}

func (c *Client) StopSession() error {
	return c.do(http.MethodPost, "/v1/session/stop", nil, nil)
}

func (c *Client) OverrideSession(secret string) error {
	return c.do(http.MethodPost, "/v1/session/override", map[string]string{"secret": secret}, nil)
}

func (c *Client) StartPomodoro() error {
	return c.do(http.MethodPost, "/v1/pomodoro/start", nil, nil)
}

func (c *Client) PausePomodoro() error {
	return c.do(http.MethodPost, "/v1/pomodoro/pause", nil, nil)
}

func (c *Client) ResetPomodoro() error {
	return c.do(http.MethodPost, "/v1/pomodoro/reset", nil, nil)
}

// ConfigurePomodoro sets the interval lengths, in minutes.
func (c *Client) ConfigurePomodoro(work, shortBreak, longBreak, intervals int) error {
	req := map[string]int{
		"work_minutes":               work,
		"short_break_minutes":        shortBreak,
		"long_break_minutes":         longBreak,
		"intervals_until_long_break": intervals,
	}
	return c.do(http.MethodPut, "/v1/pomodoro/config", req, nil)
}

func (c *Client) ListSites() ([]domain.BlockedSite, error) {
	var sites []domain.BlockedSite
	err := c.do(http.MethodGet, "/v1/blocks/sites", nil, &sites)
	return sites, err
}

func (c *Client) AddSite(domainName, category string) (int64, error) {
	req := map[string]string{"domain": domainName, "category": category}
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(http.MethodPost, "/v1/blocks/sites", req, &resp)
	return resp.ID, err
}

func (c *Client) SetSiteEnabled(id int64, enabled bool) error {
	return c.do(http.MethodPatch, fmt.Sprintf("/v1/blocks/sites/%d", id), map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) DeleteSite(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/v1/blocks/sites/%d", id), nil, nil)
}

func (c *Client) ListApps() ([]domain.BlockedApp, error) {
	var apps []domain.BlockedApp
	err := c.do(http.MethodGet, "/v1/blocks/apps", nil, &apps)
	return apps, err
}

func (c *Client) AddApp(name, processName, category string) (int64, error) {
	req := map[string]string{"name": name, "process_name": processName, "category": category}
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(http.MethodPost, "/v1/blocks/apps", req, &resp)
	return resp.ID, err
}

func (c *Client) SetAppEnabled(id int64, enabled bool) error {
	return c.do(http.MethodPatch, fmt.Sprintf("/v1/blocks/apps/%d", id), map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) DeleteApp(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/v1/blocks/apps/%d", id), nil, nil)
}

func (c *Client) ListSchedules() ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	err := c.do(http.MethodGet, "/v1/schedules/", nil, &schedules)
	return schedules, err
}

func (c *Client) AddSchedule(s domain.Schedule) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(http.MethodPost, "/v1/schedules/", s, &resp)
	return resp.ID, err
}

func (c *Client) DeleteSchedule(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/v1/schedules/%d", id), nil, nil)
}

func (c *Client) RecentBlocks(limit int) ([]domain.BlockEvent, error) {
	var events []domain.BlockEvent
	err := c.do(http.MethodGet, fmt.Sprintf("/v1/history/blocks?limit=%d", limit), nil, &events)
	return events, err
}

func (c *Client) Stats(days int) ([]domain.FocusStats, error) {
	var stats []domain.FocusStats
	err := c.do(http.MethodGet, fmt.Sprintf("/v1/history/stats?days=%d", days), nil, &stats)
	return stats, err
}

func (c *Client) ListProcesses() ([]domain.RunningProcess, error) {
	var procs []domain.RunningProcess
	err := c.do(http.MethodGet, "/v1/processes", nil, &procs)
	return procs, err
}

func (c *Client) SetSecret(secret string) error {
	return c.do(http.MethodPost, "/v1/secret", map[string]string{"secret": secret}, nil)
}

// do sends one request and decodes the JSON response into out, if any.
// Non-2xx responses surface the server's error message.
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
