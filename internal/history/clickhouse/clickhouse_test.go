package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mdstack/conductor/internal/history"
)

func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "lifecycle_history")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	// schema creation is the operator's job; mirror it here
	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lifecycle_history (
			event String,
			occurred_at DateTime64(6),
			name String,
			pid Int32,
			detail String
		) ENGINE = MergeTree() ORDER BY occurred_at`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	events := []history.Event{
		{Type: history.EventReady, OccurredAt: time.Now().UTC(), Name: "sync", PID: 42},
		{Type: history.EventStopped, OccurredAt: time.Now().UTC(), Name: "monitor:doc.md"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	row := sink.conn.QueryRow(ctx, `SELECT COUNT(*) FROM lifecycle_history`)
	var n uint64
	if err := row.Scan(&n); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if n != uint64(len(events)) {
		t.Fatalf("rows = %d, want %d", n, len(events))
	}
}
