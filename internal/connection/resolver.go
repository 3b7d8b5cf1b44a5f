// Package connection resolves configured connection ids into connection
// metadata and secrets.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Rana718/graftflow/internal/config"
	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSecretNotFound     = errors.New("secret not found")
)

// SecretSource looks up a secret by key.
type SecretSource interface {
	Secret(ctx context.Context, key string) (string, error)
}

// EnvSecrets reads secrets from environment variables.
type EnvSecrets struct{}

func (EnvSecrets) Secret(ctx context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrSecretNotFound, key)
	}
	return v, nil
}

type Options struct {
	Secrets   SecretSource
	Attempts  int
	BaseDelay time.Duration
	Logger    *slog.Logger
}

type Resolver struct {
	mu            sync.Mutex
	conns         map[string]config.Connection
	lastConnected map[string]time.Time

	secrets   SecretSource
	attempts  int
	baseDelay time.Duration
	logger    *slog.Logger
}

func NewResolver(conns map[string]config.Connection, opts Options) *Resolver {
	if opts.Secrets == nil {
		opts.Secrets = EnvSecrets{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		conns:         conns,
		lastConnected: make(map[string]time.Time),
		secrets:       opts.Secrets,
		attempts:      opts.Attempts,
		baseDelay:     opts.BaseDelay,
		logger:        opts.Logger,
	}
}

// GetConnection returns the metadata for id, or nil if id is not configured.
func (r *Resolver) GetConnection(ctx context.Context, id string) (*types.ConnectionInfo, error) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, nil
	}

	info := &types.ConnectionInfo{
		ID:       id,
		Name:     conn.Name,
		Provider: database.NormalizeProvider(conn.Provider),
		Host:     conn.Host,
		Port:     conn.Port,
		Database: conn.Database,
		Username: conn.Username,
	}
	if info.Name == "" {
		info.Name = id
	}
	if conn.URLEnv != "" {
		url, err := r.secrets.Secret(ctx, conn.URLEnv)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve url for connection %s: %w", id, err)
		}
		info.URL = url
	}

	r.mu.Lock()
	if t, ok := r.lastConnected[id]; ok {
		info.LastConnected = &t
	}
	r.mu.Unlock()

	return info, nil
}

// GetPassword returns the password for id. Lookups are retried with
// exponential backoff. A connection without password_env has no password.
func (r *Resolver) GetPassword(ctx context.Context, id string) (string, error) {
	conn, ok := r.conns[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	if conn.PasswordEnv == "" {
		return "", nil
	}

	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * time.Duration(1<<(attempt-1))
			r.logger.Debug("retrying password lookup", "connection", id, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		pw, err := r.secrets.Secret(ctx, conn.PasswordEnv)
		if err == nil {
			return pw, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to get password for connection %s after %d attempts: %w", id, r.attempts, lastErr)
}

// Descriptor resolves id into the shape drivers consume.
func (r *Resolver) Descriptor(ctx context.Context, id string) (types.ConnectionDescriptor, error) {
	info, err := r.GetConnection(ctx, id)
	if err != nil {
		return types.ConnectionDescriptor{}, err
	}
	if info == nil {
		return types.ConnectionDescriptor{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	pw, err := r.GetPassword(ctx, id)
	if err != nil {
		return types.ConnectionDescriptor{}, err
	}
	return types.NewDescriptor(*info, pw), nil
}

// MarkConnected records a successful connection to id.
func (r *Resolver) MarkConnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastConnected[id] = time.Now()
}
