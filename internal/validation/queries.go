package validation

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/database/common"
)

// threshold_check metrics
const (
	MetricRowCount        = "row_count"
	MetricTableSize       = "table_size"
	MetricIndexCount      = "index_count"
	MetricColumnCount     = "column_count"
	MetricConstraintCount = "constraint_count"
	MetricTableCount      = "table_count"
)

// pattern_match objects
const (
	ObjectTables      = "tables"
	ObjectColumns     = "columns"
	ObjectPrivileges  = "privileges"
	ObjectConstraints = "constraints"
)

type dialect struct {
	provider string
	qb       squirrel.StatementBuilderType
	quote    func(string) string
}

func dialectFor(provider string) (dialect, error) {
	adapter, err := database.NewAdapter(provider)
	if err != nil {
		return dialect{}, err
	}
	return dialect{
		provider: database.NormalizeProvider(provider),
		qb:       adapter.Builder(),
		quote:    adapter.QuoteIdentifier,
	}, nil
}

// schemaFilter scopes a catalog query to schema, or to the connection's
// current schema when none is given.
func (d dialect) schemaFilter(column, schema string) squirrel.Sqlizer {
	if schema != "" {
		return squirrel.Eq{column: schema}
	}
	if d.provider == "mysql" {
		return squirrel.Expr(column + " = DATABASE()")
	}
	return squirrel.Expr(column + " = current_schema()")
}

func (d dialect) sqlite() bool { return d.provider == "sqlite" }

// metricQuery builds the query whose first value is the metric.
func (d dialect) metricQuery(p ThresholdParams) (string, []interface{}, error) {
	if p.Metric != MetricTableCount {
		if p.Table == "" {
			return "", nil, fmt.Errorf("metric %s requires a table", p.Metric)
		}
		if err := common.ValidateIdentifier(p.Table); err != nil {
			return "", nil, err
		}
	}

	var q squirrel.SelectBuilder
	switch p.Metric {
	case MetricRowCount:
		q = d.qb.Select("COUNT(*)").From(d.quote(p.Table))

	case MetricTableSize:
		switch {
		case d.sqlite():
			q = d.qb.Select("COALESCE(SUM(pgsize), 0)").From("dbstat").Where(squirrel.Eq{"name": p.Table})
		case d.provider == "mysql":
			q = d.qb.Select("COALESCE(SUM(data_length + index_length), 0)").From("information_schema.tables").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_name": p.Table})
		default:
			name := p.Table
			if p.Schema != "" {
				name = p.Schema + "." + p.Table
			}
			q = d.qb.Select().Column(squirrel.Expr("pg_total_relation_size(CAST(? AS regclass))", name))
		}

	case MetricIndexCount:
		switch {
		case d.sqlite():
			q = d.qb.Select("COUNT(*)").From("sqlite_master").Where(squirrel.Eq{"type": "index", "tbl_name": p.Table})
		case d.provider == "mysql":
			q = d.qb.Select("COUNT(DISTINCT index_name)").From("information_schema.statistics").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_name": p.Table})
		default:
			q = d.qb.Select("COUNT(*)").From("pg_indexes").
				Where(d.schemaFilter("schemaname", p.Schema)).Where(squirrel.Eq{"tablename": p.Table})
		}

	case MetricColumnCount:
		if d.sqlite() {
			q = d.qb.Select("COUNT(*)").From(fmt.Sprintf("pragma_table_info('%s')", p.Table))
		} else {
			q = d.qb.Select("COUNT(*)").From("information_schema.columns").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_name": p.Table})
		}

	case MetricConstraintCount:
		if d.sqlite() {
			q = d.qb.Select("COUNT(*)").From(fmt.Sprintf("pragma_foreign_key_list('%s')", p.Table))
		} else {
			q = d.qb.Select("COUNT(*)").From("information_schema.table_constraints").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_name": p.Table})
		}

	case MetricTableCount:
		if d.sqlite() {
			q = d.qb.Select("COUNT(*)").From("sqlite_master").
				Where(squirrel.Eq{"type": "table"}).Where(squirrel.NotLike{"name": "sqlite_%"})
		} else {
			q = d.qb.Select("COUNT(*)").From("information_schema.tables").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_type": "BASE TABLE"})
		}

	default:
		return "", nil, fmt.Errorf("unknown threshold metric %q", p.Metric)
	}
	return q.ToSql()
}

// objectQuery lists object names for a pattern_match in the first column.
func (d dialect) objectQuery(p PatternParams) (string, []interface{}, error) {
	if p.Table != "" {
		if err := common.ValidateIdentifier(p.Table); err != nil {
			return "", nil, err
		}
	}

	var q squirrel.SelectBuilder
	switch p.Object {
	case ObjectTables:
		if d.sqlite() {
			q = d.qb.Select("name").From("sqlite_master").
				Where(squirrel.Eq{"type": "table"}).Where(squirrel.NotLike{"name": "sqlite_%"}).OrderBy("name")
		} else {
			q = d.qb.Select("table_name").From("information_schema.tables").
				Where(d.schemaFilter("table_schema", p.Schema)).Where(squirrel.Eq{"table_type": "BASE TABLE"}).
				OrderBy("table_name")
		}

	case ObjectColumns:
		if d.sqlite() {
			q = d.qb.Select("p.name").From("sqlite_master AS m").Join("pragma_table_info(m.name) AS p").
				Where(squirrel.Eq{"m.type": "table"}).Where(squirrel.NotLike{"m.name": "sqlite_%"})
			if p.Table != "" {
				q = q.Where(squirrel.Eq{"m.name": p.Table})
			}
		} else {
			q = d.qb.Select("column_name").From("information_schema.columns").
				Where(d.schemaFilter("table_schema", p.Schema))
			if p.Table != "" {
				q = q.Where(squirrel.Eq{"table_name": p.Table})
			}
		}

	case ObjectPrivileges:
		switch {
		case d.sqlite():
			return "", nil, fmt.Errorf("sqlite has no privilege catalog")
		case d.provider == "mysql":
			q = d.qb.Select("DISTINCT CONCAT(grantee, ':', privilege_type)").From("information_schema.schema_privileges").
				Where(d.schemaFilter("table_schema", p.Schema))
		default:
			q = d.qb.Select("DISTINCT grantee || ':' || privilege_type").From("information_schema.role_table_grants").
				Where(d.schemaFilter("table_schema", p.Schema))
		}

	case ObjectConstraints:
		if d.sqlite() {
			q = d.qb.Select("name").From("sqlite_master").
				Where(squirrel.Eq{"type": "index"}).Where(squirrel.Like{"name": "sqlite_autoindex_%"})
			if p.Table != "" {
				q = q.Where(squirrel.Eq{"tbl_name": p.Table})
			}
		} else {
			q = d.qb.Select("constraint_name").From("information_schema.table_constraints").
				Where(d.schemaFilter("table_schema", p.Schema))
			if p.Table != "" {
				q = q.Where(squirrel.Eq{"table_name": p.Table})
			}
		}

	default:
		return "", nil, fmt.Errorf("unknown pattern object %q", p.Object)
	}
	return q.ToSql()
}
