// Package clickhouse persists uploaded second-bar datasets in ClickHouse and
// loads them back for replay.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"motherbar-backtest/services/market"
)

// Config holds connection settings.
type Config struct {
	DSN      string
	Database string
	Table    string
	User     string
	Password string
}

// Dataset describes one stored second-bar series.
type Dataset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rows      uint64 `json:"rows"`
	FirstRaw  string `json:"first"`
	LastRaw   string `json:"last"`
	CreatedAt string `json:"createdAt"`
}

// Client wraps a native-protocol ClickHouse connection.
type Client struct {
	conn   clickhouse.Conn
	cfg    Config
	logger *zap.Logger
}

// NewClient opens and pings the connection, then ensures the schema exists.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsnHost(cfg.DSN)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	c := &Client{conn: conn, cfg: cfg, logger: logger}
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// dsnHost extracts host:port from a DSN-like URL for driver bootstrap.
func dsnHost(dsn string) string {
	host := "localhost:9000"
	if i := strings.Index(dsn, "@"); i != -1 {
		rest := dsn[i+1:]
		if j := strings.Index(rest, "?"); j != -1 {
			host = rest[:j]
		} else {
			host = rest
		}
		host = strings.TrimPrefix(host, "/")
		host = strings.TrimPrefix(host, "//")
	}
	return host
}

func (c *Client) ensureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			dataset_id String,
			dataset_name LowCardinality(String),
			ts_ms UInt64,
			ts_raw String,
			open Decimal(18, 6),
			high Decimal(18, 6),
			low Decimal(18, 6),
			close Decimal(18, 6),
			volume Decimal(18, 6),
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (dataset_id, ts_ms)
		SETTINGS index_granularity = 8192
	`, c.cfg.Database, c.cfg.Table)
	return c.conn.Exec(ctx, ddl)
}

// InsertSeconds batch-appends one dataset's second bars.
func (c *Client) InsertSeconds(ctx context.Context, datasetID, datasetName string, bars []market.SecondBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("dataset %s: no bars to insert", datasetID)
	}

	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.%s", c.cfg.Database, c.cfg.Table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	version := uint64(now.UnixMilli())
	for _, bar := range bars {
		if err := batch.Append(
			datasetID,
			datasetName,
			uint64(bar.Timestamp.UnixMilli()),
			bar.Timestamp.Raw,
			decimal.NewFromFloat(bar.Open),
			decimal.NewFromFloat(bar.High),
			decimal.NewFromFloat(bar.Low),
			decimal.NewFromFloat(bar.Close),
			decimal.NewFromFloat(bar.Volume),
			now,
			version,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}

	c.logger.Info("dataset stored",
		zap.String("dataset_id", datasetID),
		zap.String("name", datasetName),
		zap.Int("rows", len(bars)),
	)
	return nil
}

// LoadSeconds reads one dataset back in timestamp order.
func (c *Client) LoadSeconds(ctx context.Context, datasetID string) ([]market.SecondBar, error) {
	query := fmt.Sprintf(`
		SELECT ts_raw, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE dataset_id = ?
		ORDER BY ts_ms
	`, c.cfg.Database, c.cfg.Table)

	rows, err := c.conn.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query dataset %s: %w", datasetID, err)
	}
	defer rows.Close()

	var bars []market.SecondBar
	for rows.Next() {
		var raw string
		var open, high, low, closep, volume decimal.Decimal
		if err := rows.Scan(&raw, &open, &high, &low, &closep, &volume); err != nil {
			return nil, fmt.Errorf("scan dataset %s: %w", datasetID, err)
		}
		ts, err := market.ParseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
		}
		bars = append(bars, market.SecondBar{
			Timestamp: ts,
			Open:      open.InexactFloat64(),
			High:      high.InexactFloat64(),
			Low:       low.InexactFloat64(),
			Close:     closep.InexactFloat64(),
			Volume:    volume.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", datasetID, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("dataset not found: %s", datasetID)
	}
	return bars, nil
}

// ListDatasets returns stored datasets with row counts and time bounds.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	query := fmt.Sprintf(`
		SELECT
			dataset_id,
			any(dataset_name),
			count(),
			min(ts_raw),
			max(ts_raw),
			toString(min(ingested_at))
		FROM %s.%s FINAL
		GROUP BY dataset_id
		ORDER BY dataset_id
	`, c.cfg.Database, c.cfg.Table)

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.Rows, &d.FirstRaw, &d.LastRaw, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
