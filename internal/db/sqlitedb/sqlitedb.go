// Package sqlitedb stores students and users in a single SQLite file using
// the pure Go modernc.org/sqlite driver.
package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/patric-chuzhbe/students/internal/db/migrations"
	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/models"
)

// timeLayout keeps stored timestamps lexicographically ordered.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const selectUserQuery = `SELECT id, username, email, password_hash, created_at FROM users `

// SQLiteDB is the file-backed storage.
type SQLiteDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New opens (creating if needed) the database file at path and migrates it.
func New(ctx context.Context, path string, connectionTimeout time.Duration) (*SQLiteDB, error) {
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "journal_mode(WAL)")

	database, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/New(): error while `sql.Open()` calling: %w",
			err,
		)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	database.SetMaxOpenConns(1)

	result := &SQLiteDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/New(): error while `result.Ping()` calling: %w",
			err,
		)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, database, migrations.SQLite())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/New(): error while `goose.NewProvider()` calling: %w",
			err,
		)
	}

	if _, err := provider.Up(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/New(): error while `provider.Up()` calling: %w",
			err,
		)
	}

	return result, nil
}

// InsertStudent stores the student and its courses in one transaction.
func (db *SQLiteDB) InsertStudent(ctx context.Context, student *models.FullStudent) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		_, err := transaction.ExecContext(
			ctx,
			`
				INSERT INTO students (id, full_name, email, age, img, registration_date)
					VALUES (?, ?, ?, ?, ?, ?)
			`,
			student.ID.String(),
			student.FullName,
			student.Email,
			student.Age,
			student.Img,
			formatTime(student.RegistrationDate),
		)
		if err != nil {
			return fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/InsertStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		return insertCourses(ctx, transaction, student.ID, student.Courses)
	})
}

// GetStudent returns the student with its courses or storage.ErrNotFound.
func (db *SQLiteDB) GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error) {
	return getStudent(ctx, db.database, id)
}

// GetAllStudents loads all students and all courses with two queries.
func (db *SQLiteDB) GetAllStudents(ctx context.Context) ([]models.FullStudent, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, full_name, email, age, img, registration_date
				FROM students
				ORDER BY registration_date, id
		`,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/GetAllStudents(): error while `db.database.QueryContext()` calling: %w",
			err,
		)
	}
	defer rows.Close()

	result := []models.FullStudent{}
	positions := map[uuid.UUID]int{}
	for rows.Next() {
		student := models.FullStudent{Courses: []string{}}
		if err := scanStudent(rows, &student.Student); err != nil {
			return nil, err
		}
		positions[student.ID] = len(result)
		result = append(result, student)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	courseRows, err := db.database.QueryContext(ctx, `SELECT student_id, course_name FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/GetAllStudents(): error while `db.database.QueryContext()` calling: %w",
			err,
		)
	}
	defer courseRows.Close()

	for courseRows.Next() {
		var studentID uuid.UUID
		var course string
		if err := courseRows.Scan(&studentID, &course); err != nil {
			return nil, err
		}
		if position, ok := positions[studentID]; ok {
			result[position].Courses = append(result[position].Courses, course)
		}
	}
	if err := courseRows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateStudent replaces the e-mail, the age and the course list of a student.
func (db *SQLiteDB) UpdateStudent(
	ctx context.Context,
	id uuid.UUID,
	email string,
	age int,
	courses []string,
) (*models.FullStudent, error) {
	var result *models.FullStudent
	err := db.withTransaction(ctx, func(transaction *sql.Tx) error {
		res, err := transaction.ExecContext(
			ctx,
			`UPDATE students SET email = ?, age = ? WHERE id = ?`,
			email,
			age,
			id.String(),
		)
		if err != nil {
			return fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/UpdateStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		if _, err := transaction.ExecContext(ctx, `DELETE FROM courses WHERE student_id = ?`, id.String()); err != nil {
			return fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/UpdateStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		if err := insertCourses(ctx, transaction, id, courses); err != nil {
			return err
		}

		result, err = getStudent(ctx, transaction, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteStudent removes the student and its courses.
func (db *SQLiteDB) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		if _, err := transaction.ExecContext(ctx, `DELETE FROM courses WHERE student_id = ?`, id.String()); err != nil {
			return fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/DeleteStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		res, err := transaction.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/DeleteStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		return requireAffected(res)
	})
}

// CreateUser inserts a new user or returns storage.ErrUserExists.
func (db *SQLiteDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO users (id, username, email, password_hash, created_at)
				VALUES (?, ?, ?, ?, ?)
		`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		formatTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/CreateUser(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}

	return nil
}

// GetUserByID fetches a user by UUID.
func (db *SQLiteDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.getUser(ctx, selectUserQuery+`WHERE id = ?`, id.String())
}

// GetUserByEmail fetches a user by e-mail.
func (db *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, selectUserQuery+`WHERE email = ?`, email)
}

// CountStudents returns the number of stored students.
func (db *SQLiteDB) CountStudents(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM students`)
}

// CountUsers returns the number of registered users.
func (db *SQLiteDB) CountUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// Ping checks the database file is reachable within the configured timeout.
func (db *SQLiteDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database.
func (db *SQLiteDB) Close() error {
	return db.database.Close()
}

func (db *SQLiteDB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	row := db.database.QueryRowContext(ctx, query, arg)

	var createdAt string
	result := &models.User{}
	err := row.Scan(&result.ID, &result.Username, &result.Email, &result.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/getUser(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	if result.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return result, nil
}

func (db *SQLiteDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/count(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return result, nil
}

func (db *SQLiteDB) withTransaction(ctx context.Context, fn func(transaction *sql.Tx) error) error {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/withTransaction(): error while `db.database.BeginTx()` calling: %w",
			err,
		)
	}

	if err := fn(transaction); err != nil {
		if rollbackErr := transaction.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}

	return transaction.Commit()
}

// insertCourses passes the whole list as one JSON array parameter.
func insertCourses(ctx context.Context, database executor, studentID uuid.UUID, courses []string) error {
	if len(courses) == 0 {
		return nil
	}

	encoded, err := json.Marshal(courses)
	if err != nil {
		return err
	}

	_, err = database.ExecContext(
		ctx,
		`
			INSERT INTO courses (student_id, course_name)
				SELECT ?, value FROM json_each(?) ORDER BY key
		`,
		studentID.String(),
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/insertCourses(): error while `database.ExecContext()` calling: %w",
			err,
		)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner, student *models.Student) error {
	var registrationDate string
	err := row.Scan(
		&student.ID,
		&student.FullName,
		&student.Email,
		&student.Age,
		&student.Img,
		&registrationDate,
	)
	if err != nil {
		return err
	}

	student.RegistrationDate, err = parseTime(registrationDate)

	return err
}

func getStudent(ctx context.Context, database queryer, id uuid.UUID) (*models.FullStudent, error) {
	row := database.QueryRowContext(
		ctx,
		`SELECT id, full_name, email, age, img, registration_date FROM students WHERE id = ?`,
		id.String(),
	)

	result := &models.FullStudent{Courses: []string{}}
	if err := scanStudent(row, &result.Student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/getStudent(): error while `scanStudent()` calling: %w",
			err,
		)
	}

	rows, err := database.QueryContext(
		ctx,
		`SELECT course_name FROM courses WHERE student_id = ? ORDER BY id`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/getStudent(): error while `database.QueryContext()` calling: %w",
			err,
		)
	}
	defer rows.Close()

	for rows.Next() {
		var course string
		if err := rows.Scan(&course); err != nil {
			return nil, err
		}
		result.Courses = append(result.Courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT:
		return true
	default:
		return false
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	result, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"in internal/db/sqlitedb/sqlitedb.go/parseTime(): error while `time.Parse()` calling: %w",
			err,
		)
	}

	return result.UTC(), nil
}
