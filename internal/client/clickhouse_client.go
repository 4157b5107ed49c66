package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"chat-assistant/internal/config"
)

const (
	clickhousePort       = "9000"
	clickhouseSecurePort = "9440"
)

// ClickHouseClient is the write path for reply analytics: DDL through Exec
// and rows through BatchInsert.
type ClickHouseClient struct {
	conn   driver.Conn
	logger *zap.Logger
}

type clickhouseEndpoint struct {
	addr   string
	host   string
	secure bool
}

// parseClickhouseURL accepts http, https, clickhouse or bare host forms.
// https and port 9440 select the TLS native port.
func parseClickhouseURL(raw string) (clickhouseEndpoint, error) {
	if !strings.Contains(raw, "://") {
		raw = "clickhouse://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return clickhouseEndpoint{}, fmt.Errorf("parse clickhouse url: %w", err)
	}
	if u.Hostname() == "" {
		return clickhouseEndpoint{}, fmt.Errorf("clickhouse url %q has no host", raw)
	}

	ep := clickhouseEndpoint{host: u.Hostname(), secure: u.Scheme == "https"}
	port := u.Port()
	switch {
	case port == "" && ep.secure:
		port = clickhouseSecurePort
	case port == "":
		port = clickhousePort
	case port == clickhouseSecurePort:
		ep.secure = true
	}
	ep.addr = net.JoinHostPort(ep.host, port)
	return ep, nil
}

func clickhouseTLS(host, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read clickhouse CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chCfg := cfg.Clickhouse
	ep, err := parseClickhouseURL(chCfg.URL)
	if err != nil {
		return nil, err
	}

	opts := &ch.Options{
		Addr: []string{ep.addr},
		Auth: ch.Auth{
			Username: chCfg.Username,
			Password: chCfg.Password,
			Database: chCfg.Database,
		},
		Compression:     &ch.Compression{Method: ch.CompressionLZ4},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	if ep.secure || cfg.IsProduction() {
		if opts.TLS, err = clickhouseTLS(ep.host, chCfg.CAFile); err != nil {
			return nil, err
		}
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	logger.Info("ClickHouse client initialized",
		zap.String("addr", ep.addr),
		zap.String("database", chCfg.Database),
		zap.Bool("tls_enabled", opts.TLS != nil),
	)
	return &ClickHouseClient{conn: conn, logger: logger}, nil
}

func (c *ClickHouseClient) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// BatchInsert sends rows as one block. A row that does not fit the table
// aborts the whole batch.
func (c *ClickHouseClient) BatchInsert(ctx context.Context, query string, rows [][]interface{}) error {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}
	return batch.Send()
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	return c.conn.Close()
}
