// Package auth supplies bearer credentials to the connection manager and the
// REST client. The token is treated as an opaque string.
package auth

import (
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider hands out the current bearer token. An empty token means no
// credential is available. Invalidate is called when the server rejects the
// credential (the logout side effect); after it, Token returns "" until the
// provider is re-armed.
type Provider interface {
	Token() string
	Invalidate()
}

// StaticProvider holds a fixed token, typically from a -token flag.
type StaticProvider struct {
	mu    sync.Mutex
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// SetToken replaces the stored token, e.g. after a fresh login.
func (p *StaticProvider) SetToken(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

func (p *StaticProvider) Invalidate() {
	p.SetToken("")
}

// EnvProvider reads the token from a process environment variable on every
// call, so a rotated credential is picked up at the next reconnect.
type EnvProvider struct {
	key string

	mu      sync.Mutex
	invalid bool
}

func NewEnvProvider(key string) *EnvProvider {
	return &EnvProvider{key: key}
}

func (p *EnvProvider) Token() string {
	p.mu.Lock()
	invalid := p.invalid
	p.mu.Unlock()
	if invalid {
		return ""
	}
	return os.Getenv(p.key)
}

func (p *EnvProvider) Invalidate() {
	p.mu.Lock()
	p.invalid = true
	p.mu.Unlock()
}

// LoadDotenv merges a .env file into the process environment. A missing file
// is not an error; existing variables are never overwritten.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
