package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
)

const formatVersion = "1.0"

// AdapterSource hands out connected adapters.
type AdapterSource interface {
	Adapter(ctx context.Context, conn types.ConnectionDescriptor) (database.DatabaseAdapter, error)
}

// Manager dumps table data to JSON files.
type Manager struct {
	db         AdapterSource
	backupPath string
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(db AdapterSource, backupPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, backupPath: backupPath, logger: logger, now: time.Now}
}

// CreateBackup writes every table of conn to a backup file and returns its
// path. A database without tables is not backed up and yields "".
func (m *Manager) CreateBackup(ctx context.Context, conn types.ConnectionDescriptor, comment string) (string, error) {
	adapter, err := m.db.Adapter(ctx, conn)
	if err != nil {
		return "", err
	}

	tables, err := adapter.GetAllTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get table names: %w", err)
	}
	if len(tables) == 0 {
		m.logger.Info("no tables found, skipping backup", "connection", conn.ID)
		return "", nil
	}

	now := m.now()
	data := types.BackupData{
		Timestamp:    now.Format(time.RFC3339),
		Version:      formatVersion,
		ConnectionID: conn.ID,
		Tables:       make(map[string]interface{}, len(tables)),
		Comment:      comment,
	}

	for _, table := range tables {
		rows, err := adapter.GetTableData(ctx, table)
		if err != nil {
			return "", fmt.Errorf("failed to read table %s: %w", table, err)
		}
		if rows == nil {
			rows = []map[string]interface{}{}
		}
		data.Tables[table] = rows
	}

	if err := os.MkdirAll(m.backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	filename := fmt.Sprintf("backup_%s_%s.json", conn.ID, now.Format("2006-01-02_15-04-05"))
	path := filepath.Join(m.backupPath, filename)

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	m.logger.Info("backup created", "connection", conn.ID, "path", path, "tables", len(tables))
	return path, nil
}

// Load reads a backup file written by CreateBackup.
func Load(path string) (*types.BackupData, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	var data types.BackupData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse backup file %s: %w", path, err)
	}
	return &data, nil
}
