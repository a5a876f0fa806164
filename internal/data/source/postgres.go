package source

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// Querier is the subset of *pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads rows of the configured tables, filtered by scope
// column, and hands them on as raw records.
type PostgresSource struct {
	cfg  config.PostgresSource
	db   Querier
	pool *pgxpool.Pool
}

// NewPostgresSource opens a pool for cfg.DSN. Sessions run in UTC so
// timestamp columns without zone come back unshifted.
func NewPostgresSource(ctx context.Context, cfg config.PostgresSource) (*PostgresSource, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = "30s"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	s := NewPostgresSourceWithQuerier(pool, cfg)
	s.pool = pool
	return s, nil
}

// NewPostgresSourceWithQuerier builds a source on an existing connection.
func NewPostgresSourceWithQuerier(db Querier, cfg config.PostgresSource) *PostgresSource {
	return &PostgresSource{cfg: cfg, db: db}
}

func (p *PostgresSource) Name() string { return KindPostgres }

func (p *PostgresSource) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Fetch queries every configured table in order. Any table error fails the
// fetch.
func (p *PostgresSource) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	records := make([]model.RawRecord, 0)
	for _, table := range p.cfg.Tables {
		rows, err := p.db.Query(ctx, buildQuery(table), scope, p.cfg.RowLimit)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table.Table, err)
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table.Table, err)
		}
		for _, row := range maps {
			records = append(records, rowToRecord(row, table))
		}
		util.LogDebugf("Loaded %d rows from %s for scope %s", len(maps), table.Table, scope)
	}
	return records, nil
}

func buildQuery(table config.PostgresTable) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(identifier(table.Table))
	b.WriteString(" WHERE ")
	b.WriteString(identifier(table.ScopeColumn))
	b.WriteString(" = $1")
	if table.TimeColumn != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(identifier(table.TimeColumn))
		b.WriteString(" DESC")
	}
	b.WriteString(" LIMIT $2")
	return b.String()
}

// identifier quotes a possibly schema-qualified name.
func identifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func rowToRecord(row map[string]any, table config.PostgresTable) model.RawRecord {
	record := make(model.RawRecord, len(row)+1)
	for k, v := range row {
		record[k] = convertValue(v)
	}
	if table.Type != "" && !hasAny(record, model.TypeFields) {
		record[model.TypeFields[0]] = table.Type
	}
	if _, ok := record[model.SourceField]; !ok {
		record[model.SourceField] = table.Table
	}
	return record
}

func hasAny(record model.RawRecord, keys []string) bool {
	for _, k := range keys {
		if v, ok := record[k]; ok && v != nil {
			return true
		}
	}
	return false
}

// convertValue maps driver types onto the plain values the normalizer
// understands.
func convertValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finiteOrNil(f.Float64)
	case float64:
		return finiteOrNil(val)
	case float32:
		return finiteOrNil(float64(val))
	case []byte:
		return string(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = convertValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = convertValue(inner)
		}
		return val
	default:
		return v
	}
}

// finiteOrNil drops NaN and infinities, which have no JSON encoding.
func finiteOrNil(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
