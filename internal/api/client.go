// Package api is a thin REST client for the panel endpoints that surround a
// run: logging in and listing saved command scripts. A 401 from any endpoint
// invalidates the shared credential provider so the next connect forces a
// fresh login.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moonheart/nodenexus-go/internal/auth"
)

// ErrUnauthorized is returned when the server rejects the credential.
var ErrUnauthorized = errors.New("unauthorized")

type Client struct {
	baseURL string
	auth    auth.Provider
	client  *http.Client
}

// NewClient targets the given base URL (e.g. "http://127.0.0.1:8080") and
// reads the bearer token from provider on every request.
func NewClient(baseURL string, provider auth.Provider) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    provider,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Script is a saved command script.
type Script struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Content          string `json:"content"`
	WorkingDirectory string `json:"workingDirectory"`
}

// Login exchanges username/password for a bearer token. The token is
// returned, not stored; arming a provider with it is the caller's choice.
func (c *Client) Login(username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.post("/api/auth/login", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// ListScripts fetches the saved scripts available for batch runs.
func (c *Client) ListScripts() ([]Script, error) {
	var out []Script
	if err := c.get("/api/batch_commands/scripts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.Invalidate()
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrUnauthorized)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
