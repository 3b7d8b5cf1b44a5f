package types

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type SchemaEnum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type SchemaTable struct {
	Name    string         `json:"name"`
	Columns []SchemaColumn `json:"columns"`
	Indexes []SchemaIndex  `json:"indexes,omitempty"`
}

type SchemaColumn struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Nullable         bool   `json:"nullable"`
	Default          string `json:"default,omitempty"`
	IsPrimary        bool   `json:"isPrimary,omitempty"`
	IsUnique         bool   `json:"isUnique,omitempty"`
	IsAutoIncrement  bool   `json:"isAutoIncrement,omitempty"`
	ForeignKeyTable  string `json:"foreignKeyTable,omitempty"`
	ForeignKeyColumn string `json:"foreignKeyColumn,omitempty"`
	OnDeleteAction   string `json:"onDeleteAction,omitempty"`
}

type SchemaIndex struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// SchemaDiff lists the changes that make a target schema match a source
// schema. NewTables exist only in the source, DroppedTables only in the target.
type SchemaDiff struct {
	NewTables      []SchemaTable `json:"newTables,omitempty"`
	DroppedTables  []string      `json:"droppedTables,omitempty"`
	ModifiedTables []TableDiff   `json:"modifiedTables,omitempty"`
	NewIndexes     []SchemaIndex `json:"newIndexes,omitempty"`
	DroppedIndexes []SchemaIndex `json:"droppedIndexes,omitempty"`
	NewEnums       []SchemaEnum  `json:"newEnums,omitempty"`
	DroppedEnums   []string      `json:"droppedEnums,omitempty"`
}

func (d *SchemaDiff) HasChanges() bool {
	if d == nil {
		return false
	}
	return len(d.NewTables) > 0 || len(d.DroppedTables) > 0 || len(d.ModifiedTables) > 0 ||
		len(d.NewIndexes) > 0 || len(d.DroppedIndexes) > 0 ||
		len(d.NewEnums) > 0 || len(d.DroppedEnums) > 0
}

type TableDiff struct {
	Name            string         `json:"name"`
	NewColumns      []SchemaColumn `json:"newColumns,omitempty"`
	DroppedColumns  []SchemaColumn `json:"droppedColumns,omitempty"`
	ModifiedColumns []ColumnDiff   `json:"modifiedColumns,omitempty"`
}

type ColumnDiff struct {
	Name    string   `json:"name"`
	OldType string   `json:"oldType"`
	NewType string   `json:"newType"`
	Changes []string `json:"changes"`
}

type BackupData struct {
	Timestamp    string                 `json:"timestamp"`
	Version      string                 `json:"version"`
	ConnectionID string                 `json:"connection_id"`
	Tables       map[string]interface{} `json:"tables"`
	Comment      string                 `json:"comment"`
}

// ConnectionInfo is the non-secret metadata of a configured connection.
type ConnectionInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Provider      string     `json:"provider"`
	Host          string     `json:"host,omitempty"`
	Port          int        `json:"port,omitempty"`
	Database      string     `json:"database"`
	Username      string     `json:"username,omitempty"`
	URL           string     `json:"-"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`
}

// ConnectionDescriptor is what drivers receive: connection info plus the
// resolved secret.
type ConnectionDescriptor struct {
	ConnectionInfo
	Password string `json:"-"`
}

func NewDescriptor(info ConnectionInfo, password string) ConnectionDescriptor {
	return ConnectionDescriptor{ConnectionInfo: info, Password: password}
}

// DSN builds a driver URL. An explicit URL on the connection wins.
func (d ConnectionDescriptor) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	switch d.Provider {
	case "sqlite", "sqlite3":
		return "sqlite://" + d.Database
	case "mysql":
		host := d.Host
		if d.Port != 0 {
			host = host + ":" + strconv.Itoa(d.Port)
		}
		u := url.URL{Scheme: "mysql", Host: host, Path: "/" + d.Database}
		if d.Username != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		}
		return u.String()
	default:
		host := d.Host
		if d.Port != 0 {
			host = host + ":" + strconv.Itoa(d.Port)
		}
		u := url.URL{Scheme: "postgres", Host: host, Path: "/" + d.Database}
		if d.Username != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		}
		return u.String()
	}
}

func (d ConnectionDescriptor) String() string {
	return fmt.Sprintf("%s(%s@%s/%s)", d.ID, d.Provider, d.Host, d.Database)
}

type QueryResult struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// FirstValue returns the first column of the first row.
func (r *QueryResult) FirstValue() (interface{}, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Columns) == 0 {
		return nil, false
	}
	v, ok := r.Rows[0][r.Columns[0]]
	return v, ok
}

type QueryOptions struct {
	MaxRows int
	Timeout time.Duration
}

type ExecOptions struct {
	Transactional bool
	Timeout       time.Duration
}

// ExecResult is returned even when execution fails part way, so callers can
// see how many statements were applied before the error.
type ExecResult struct {
	StatementsExecuted int
	Duration           time.Duration
}

type ComparisonMode string

const (
	CompareStrict     ComparisonMode = "strict"
	CompareStructural ComparisonMode = "structural"
)

type ScriptOptions struct {
	Type            string
	IncludeRollback bool
	DryRun          bool
}

type Script struct {
	SQL         string `json:"sql"`
	RollbackSQL string `json:"rollbackSql,omitempty"`
}
