package migrations

import "embed"

// ClickhouseFS embeds the ClickHouse DDL files. The same table set is
// applied to the hot and the cold database.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
