package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/database/common"
	"github.com/Rana718/graftflow/internal/types"
	driver "github.com/go-sql-driver/mysql"
)

type Adapter struct {
	db        *sql.DB
	qb        squirrel.StatementBuilderType
	currentDB string
}

var typeMap = map[string]string{
	"varchar": "VARCHAR", "char": "CHAR",
	"text": "TEXT", "longtext": "TEXT", "mediumtext": "TEXT", "tinytext": "TEXT",
	"int": "INT", "integer": "INT", "bigint": "BIGINT", "smallint": "SMALLINT", "tinyint": "TINYINT",
	"datetime": "DATETIME", "timestamp": "TIMESTAMP", "date": "DATE", "time": "TIME",
	"decimal": "DECIMAL", "float": "FLOAT", "double": "DOUBLE",
	"json": "JSON", "blob": "BLOB", "binary": "BINARY", "varbinary": "VARBINARY",
}

var tlsParams = map[string]string{
	"ssl-mode=REQUIRED": "tls=skip-verify", "ssl-mode=DISABLED": "tls=false",
	"sslmode=require": "tls=skip-verify", "sslmode=disable": "tls=false",
	"sslmode=verify-ca": "tls=true", "sslmode=verify-full": "tls=true",
}

func New() *Adapter {
	return &Adapter{
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// ToDSN converts a mysql:// URL into a go-sql-driver DSN. Anything else is
// assumed to already be a DSN.
func ToDSN(raw string) (string, error) {
	if !strings.HasPrefix(raw, "mysql://") {
		cfg, err := driver.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("invalid MySQL DSN: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	for from, to := range tlsParams {
		raw = strings.ReplaceAll(raw, from, to)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL URL: %w", err)
	}

	cfg := driver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if tls := u.Query().Get("tls"); tls != "" {
		cfg.TLSConfig = tls
	}
	return cfg.FormatDSN(), nil
}

func (m *Adapter) Connect(ctx context.Context, url string) error {
	dsn, err := ToDSN(url)
	if err != nil {
		return err
	}
	if cfg, err := driver.ParseDSN(dsn); err == nil {
		m.currentDB = cfg.DBName
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	m.db = db
	return nil
}

func (m *Adapter) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *Adapter) Ping(ctx context.Context) error {
	if m.db == nil {
		return fmt.Errorf("mysql adapter is not connected")
	}
	return m.db.PingContext(ctx)
}

func (m *Adapter) Builder() squirrel.StatementBuilderType {
	return m.qb
}

func (m *Adapter) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m *Adapter) ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*types.QueryResult, error) {
	if isExecStatement(query) {
		if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to execute statement: %w", err)
		}
		return common.NewQueryResult(nil), nil
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := common.NewQueryResult(columns)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = common.NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// ExecuteStatements mirrors the postgres adapter. MySQL commits DDL
// implicitly, so a transactional run only protects DML.
func (m *Adapter) ExecuteStatements(ctx context.Context, statements []string, transactional bool) (int, error) {
	if !transactional {
		for i, stmt := range statements {
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return i, fmt.Errorf("failed to execute statement %d: %w", i+1, err)
			}
		}
		return len(statements), nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to execute statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(statements), nil
}

func isExecStatement(query string) bool {
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "USE", "SET", "CREATE", "DROP", "ALTER", "INSERT", "UPDATE", "DELETE", "TRUNCATE":
		return true
	}
	return false
}
