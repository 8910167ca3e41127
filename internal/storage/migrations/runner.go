// Package migrations applies the embedded ClickHouse DDL.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	chstore "market-data-pipeline/internal/storage/clickhouse"
)

// RunClickhouse ensures the database exists and applies all embedded
// SQL files to it. Returns a connection to the target database for
// reuse. Called for the hot database by the writer and for both
// databases by the replicator.
func RunClickhouse(ctx context.Context, dsn, database string, config *chstore.ConnConfig) (*chstore.Conn, error) {
	if database == "" {
		return nil, fmt.Errorf("migrations require a database name")
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "default", config)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)); err != nil {
		adminConn.Close()
		return nil, fmt.Errorf("create database %s: %w", database, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, database, config)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	if err := Apply(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Apply runs every embedded DDL file against the connection's database,
// in file-name order.
func Apply(ctx context.Context, conn *chstore.Conn) error {
	entries, err := fs.ReadDir(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		for _, stmt := range splitStatements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return nil
}

// splitStatements splits a DDL file on semicolons, dropping comments
// and blanks. The embedded files never carry semicolons inside strings.
func splitStatements(sql string) []string {
	var out []string
	for _, raw := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
