// Package migrations embeds the goose SQL migrations of both SQL backends.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedded embed.FS

// Postgres returns the PostgreSQL migrations.
func Postgres() fs.FS {
	return sub("postgres")
}

// SQLite returns the SQLite migrations.
func SQLite() fs.FS {
	return sub("sqlite")
}

func sub(dir string) fs.FS {
	result, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(err)
	}

	return result
}
