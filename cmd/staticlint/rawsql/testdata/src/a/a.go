package a

import (
	"context"
	"database/sql"
	"fmt"
)

const selectStudents = "SELECT id, full_name FROM students"

func queries(ctx context.Context, db *sql.DB, table, id string) {
	_, _ = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)) // want "SQL query built with fmt.Sprintf"
	_, _ = db.QueryContext(ctx, "SELECT * FROM "+table)              // want "SQL query built by string concatenation"
	_, _ = db.Query(("SELECT * FROM " + table))                      // want "SQL query built by string concatenation"
	_, _ = db.Exec(fmt.Sprintf("TRUNCATE %s", table))                // want "SQL query built with fmt.Sprintf"

	_ = db.QueryRowContext(ctx, selectStudents+" WHERE id = $1", id)
	_, _ = db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)

	query := selectStudents
	_, _ = db.QueryContext(ctx, query)
}

type notADatabase struct{}

func (notADatabase) Exec(query string) {}

func other(table string) {
	notADatabase{}.Exec("SELECT * FROM " + table) // want "SQL query built by string concatenation"
	fmt.Println("SELECT * FROM " + table)
}
