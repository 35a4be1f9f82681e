// Package all wires every built-in warehouse backend into the storage
// registry. It exists for side effects only: importing it runs each backend's
// init, which registers its factory.
//
// Kinds made available:
//
//   - "redshift" and "postgres" (dwh/internal/storage/postgres)
//   - "mssql"                   (dwh/internal/storage/mssql)
//   - "mysql"                   (dwh/internal/storage/mysql)
//   - "sqlite"                  (dwh/internal/storage/sqlite)
//   - "duckdb"                  (dwh/internal/storage/duckdb)
//
// Typical usage in a wiring layer:
//
//	import _ "dwh/internal/storage/all"
//
//	wh, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "dwh.db"})
//
// A binary that needs only some backends can import those packages directly
// instead of this one.
package all

import (
	_ "dwh/internal/storage/duckdb"
	_ "dwh/internal/storage/mssql"
	_ "dwh/internal/storage/mysql"
	_ "dwh/internal/storage/postgres"
	_ "dwh/internal/storage/sqlite"
)
