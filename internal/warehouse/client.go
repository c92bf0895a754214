// Package warehouse is the Snowflake gateway for the ad-revenue fact
// table. It answers the grouped period queries the deep-dive engine
// issues and serves distinct column values for the lookup cache.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/adpulse/perftracker/internal/deepdive"
)

// Client provides access to the Snowflake warehouse.
type Client struct {
	config Config
	db     *sql.DB
}

// NewClient creates a new warehouse client.
func NewClient(cfg Config) (*Client, error) {
	// Build DSN (Data Source Name)
	// Format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)

	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	// Analytical queries are few and slow; keep the pool small.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{
		config: cfg,
		db:     db,
	}, nil
}

// newClientWithDB wires a client over an existing handle, for tests.
func newClientWithDB(cfg Config, db *sql.DB) *Client {
	return &Client{config: cfg, db: db}
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// FetchEntityMetrics runs one grouped period query: revenue, request and
// paid-request sums per entity over the date range, restricted by the
// pre-compiled predicate. The predicate text is built upstream from
// whitelisted columns and escaped literals only; dates travel as binds.
func (c *Client) FetchEntityMetrics(ctx context.Context, q deepdive.MetricQuery) ([]deepdive.EntityMetricRow, error) {
	labelExpr := q.KeyColumn
	if q.LabelColumn != "" {
		labelExpr = fmt.Sprintf("COALESCE(MAX(%s), '')", q.LabelColumn)
	}

	query := fmt.Sprintf(`
		SELECT
			TO_VARCHAR(%s) as entity_key,
			%s as label,
			COALESCE(SUM(REVENUE), 0) as revenue,
			COALESCE(SUM(TOTAL_REQUESTS), 0) as requests,
			COALESCE(SUM(PAID_REQUESTS), 0) as paid_requests
		FROM %s
		WHERE LOG_DATE BETWEEN ? AND ?
		AND (%s)
		GROUP BY %s
	`, q.KeyColumn, labelExpr, q.Table, q.Predicate, q.KeyColumn)

	rows, err := c.db.QueryContext(ctx, query, q.Range.Start, q.Range.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity metrics: %w", err)
	}
	defer rows.Close()

	var result []deepdive.EntityMetricRow
	for rows.Next() {
		var row deepdive.EntityMetricRow
		if err := rows.Scan(&row.Key, &row.Label, &row.Revenue, &row.Requests, &row.PaidRequests); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metric rows: %w", err)
	}

	return result, nil
}

// FetchDistinctValues returns the distinct values of one whitelisted
// column, for the dropdown lookups. Capped so a high-cardinality column
// cannot flood the UI.
func (c *Client) FetchDistinctValues(ctx context.Context, column string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT TO_VARCHAR(%s) as val
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY val
		LIMIT %d
	`, column, c.config.QualifiedTable(), column, limit)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct values: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}

	return result, nil
}
