// Package dbmigrations exposes embedded SQL migrations for payroute binaries.
package dbmigrations

import "embed"

// Files contains the routing schema migrations bundled into payroute binaries.
//
//go:embed *.sql
var Files embed.FS
