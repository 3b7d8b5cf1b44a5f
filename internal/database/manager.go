package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Rana718/graftflow/internal/database/common"
	"github.com/Rana718/graftflow/internal/types"
)

// AdapterFactory builds an unconnected adapter for a provider.
type AdapterFactory func(provider string) (DatabaseAdapter, error)

// Manager keeps one connected adapter per connection id and exposes the
// query and script execution used by validation, verification and the
// orchestrator.
type Manager struct {
	mu       sync.Mutex
	adapters map[string]DatabaseAdapter
	factory  AdapterFactory
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return NewManagerWithFactory(NewAdapter, logger)
}

func NewManagerWithFactory(factory AdapterFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		adapters: make(map[string]DatabaseAdapter),
		factory:  factory,
		logger:   logger,
	}
}

// Adapter returns the cached adapter for conn.ID, connecting on first use.
func (m *Manager) Adapter(ctx context.Context, conn types.ConnectionDescriptor) (DatabaseAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if adapter, ok := m.adapters[conn.ID]; ok {
		return adapter, nil
	}

	adapter, err := m.factory(conn.Provider)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx, conn.DSN()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conn.ID, err)
	}
	if err := adapter.Ping(ctx); err != nil {
		adapter.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", conn.ID, err)
	}

	m.adapters[conn.ID] = adapter
	m.logger.Debug("connection opened", "connection", conn.ID, "provider", conn.Provider)
	return adapter, nil
}

func (m *Manager) ExecuteQuery(ctx context.Context, conn types.ConnectionDescriptor, query string, opts types.QueryOptions, args ...interface{}) (*types.QueryResult, error) {
	adapter, err := m.Adapter(ctx, conn)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, err := adapter.ExecuteQuery(ctx, query, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("query timed out after %s: %w", opts.Timeout, err)
		}
		return nil, err
	}
	if opts.MaxRows > 0 && len(result.Rows) > opts.MaxRows {
		result.Rows = result.Rows[:opts.MaxRows]
	}
	return result, nil
}

// ExecuteScript splits script into statements and applies them in order.
// The returned ExecResult is never nil.
func (m *Manager) ExecuteScript(ctx context.Context, conn types.ConnectionDescriptor, script string, opts types.ExecOptions) (*types.ExecResult, error) {
	start := time.Now()
	res := &types.ExecResult{}

	statements := common.ParseSQLStatements(script)
	if len(statements) == 0 {
		return res, nil
	}

	adapter, err := m.Adapter(ctx, conn)
	if err != nil {
		return res, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	executed, err := adapter.ExecuteStatements(ctx, statements, opts.Transactional)
	res.StatementsExecuted = executed
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	m.logger.Debug("script executed", "connection", conn.ID, "statements", executed, "duration", res.Duration)
	return res, nil
}

func (m *Manager) Schema(ctx context.Context, conn types.ConnectionDescriptor) ([]types.SchemaTable, []types.SchemaEnum, error) {
	adapter, err := m.Adapter(ctx, conn)
	if err != nil {
		return nil, nil, err
	}

	tables, err := adapter.GetCurrentSchema(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema of %s: %w", conn.ID, err)
	}
	enums, err := adapter.GetCurrentEnums(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read enums of %s: %w", conn.ID, err)
	}
	return tables, enums, nil
}

// Release closes and forgets the adapter for connID. Unknown ids are a no-op.
func (m *Manager) Release(ctx context.Context, connID string) error {
	m.mu.Lock()
	adapter, ok := m.adapters[connID]
	delete(m.adapters, connID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.logger.Debug("connection released", "connection", connID)
	return adapter.Close()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]DatabaseAdapter)
	m.mu.Unlock()

	var errs []error
	for id, adapter := range adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
