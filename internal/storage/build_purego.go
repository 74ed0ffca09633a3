//go:build !sqlite_cgo

package storage

// Default build. Uses the pure Go SQLite translation, no C compiler
// required:
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver name
	DriverName = "sqlite"

	// BuildMode describes the SQLite build
	BuildMode = "purego"
)
