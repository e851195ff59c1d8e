// Package postgresdb provides a PostgreSQL-based implementation of the storage interface
// for persisting students, their courses and user accounts.
// The schema is managed by goose migrations embedded into the binary.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/students/internal/db/migrations"
	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/models"
)

const (
	uniqueViolationCode = "23505"

	selectUserQuery = `SELECT id, username, email, password_hash, created_at FROM users `
)

// PostgresDB is a PostgreSQL-backed implementation of the students storage.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset   bool
	MaxOpenConns int
	MaxIdleConns int
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping every table before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithMaxOpenConns limits the size of the connection pool. Zero means unlimited.
func WithMaxOpenConns(value int) InitOption {
	return func(options *initOptions) {
		options.MaxOpenConns = value
	}
}

// WithMaxIdleConns limits the number of idle pooled connections.
func WithMaxIdleConns(value int) InitOption {
	return func(options *initOptions) {
		options.MaxIdleConns = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset:   false,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(options.MaxOpenConns)
	database.SetMaxIdleConns(options.MaxIdleConns)

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w",
				err,
			)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, database, migrations.Postgres())
	if err != nil {
		_ = database.Close()
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.NewProvider()` calling: %w",
				err,
			)
	}

	if _, err := provider.Up(ctx); err != nil {
		_ = database.Close()
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `provider.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// InsertStudent stores the student and its courses in one transaction.
func (db *PostgresDB) InsertStudent(ctx context.Context, student *models.FullStudent) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		_, err := transaction.ExecContext(
			ctx,
			`
				INSERT INTO students (id, full_name, email, age, img, registration_date)
					VALUES ($1, $2, $3, $4, $5, $6)
			`,
			student.ID,
			student.FullName,
			student.Email,
			student.Age,
			student.Img,
			student.RegistrationDate,
		)
		if err != nil {
			return fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/InsertStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		return insertCourses(ctx, transaction, student.ID, student.Courses)
	})
}

// GetStudent returns the student with its courses or storage.ErrNotFound.
func (db *PostgresDB) GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error) {
	return getStudent(ctx, db.database, id)
}

// GetAllStudents loads all students and all courses with two queries.
func (db *PostgresDB) GetAllStudents(ctx context.Context) ([]models.FullStudent, error) {
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
			"in internal/db/postgresdb/postgresdb.go/GetAllStudents(): error while `db.database.QueryContext()` calling: %w",
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

	courseRows, err := db.database.QueryContext(
		ctx,
		`SELECT student_id, course_name FROM courses ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/GetAllStudents(): error while `db.database.QueryContext()` calling: %w",
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
func (db *PostgresDB) UpdateStudent(
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
			`UPDATE students SET email = $1, age = $2 WHERE id = $3`,
			email,
			age,
			id,
		)
		if err != nil {
			return fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/UpdateStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		if _, err := transaction.ExecContext(ctx, `DELETE FROM courses WHERE student_id = $1`, id); err != nil {
			return fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/UpdateStudent(): error while `transaction.ExecContext()` calling: %w",
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
func (db *PostgresDB) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		if _, err := transaction.ExecContext(ctx, `DELETE FROM courses WHERE student_id = $1`, id); err != nil {
			return fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/DeleteStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		res, err := transaction.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/DeleteStudent(): error while `transaction.ExecContext()` calling: %w",
				err,
			)
		}

		return requireAffected(res)
	})
}

// CreateUser inserts a new user record into the database.
// Returns storage.ErrUserExists when the username or the e-mail is taken.
func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO users (id, username, email, password_hash, created_at)
				VALUES ($1, $2, $3, $4, $5)
		`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return storage.ErrUserExists
		}
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/CreateUser(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}

	return nil
}

// GetUserByID fetches a user by their UUID from the database.
func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.getUser(ctx, selectUserQuery+`WHERE id = $1`, id)
}

// GetUserByEmail fetches a user by their e-mail from the database.
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, selectUserQuery+`WHERE email = $1`, email)
}

// CountStudents returns the number of stored students.
func (db *PostgresDB) CountStudents(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM students`)
}

// CountUsers returns the number of registered users.
func (db *PostgresDB) CountUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	row := db.database.QueryRowContext(ctx, query, arg)

	result := &models.User{}
	err := row.Scan(&result.ID, &result.Username, &result.Email, &result.PasswordHash, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/getUser(): error while `row.Scan()` calling: %w",
			err,
		)
	}
	result.CreatedAt = result.CreatedAt.UTC()

	return result, nil
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/count(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return result, nil
}

func (db *PostgresDB) withTransaction(ctx context.Context, fn func(transaction *sql.Tx) error) error {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/withTransaction(): error while `db.database.BeginTx()` calling: %w",
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

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

func insertCourses(ctx context.Context, database executor, studentID uuid.UUID, courses []string) error {
	if len(courses) == 0 {
		return nil
	}

	_, err := database.ExecContext(
		ctx,
		`
			INSERT INTO courses (student_id, course_name)
				SELECT $1, course_name
					FROM unnest($2::text[]) WITH ORDINALITY AS c(course_name, position)
					ORDER BY position
		`,
		studentID,
		pq.Array(courses),
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/insertCourses(): error while `database.ExecContext()` calling: %w",
			err,
		)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner, student *models.Student) error {
	err := row.Scan(
		&student.ID,
		&student.FullName,
		&student.Email,
		&student.Age,
		&student.Img,
		&student.RegistrationDate,
	)
	if err != nil {
		return err
	}
	student.RegistrationDate = student.RegistrationDate.UTC()

	return nil
}

func getStudent(ctx context.Context, database queryer, id uuid.UUID) (*models.FullStudent, error) {
	row := database.QueryRowContext(
		ctx,
		`SELECT id, full_name, email, age, img, registration_date FROM students WHERE id = $1`,
		id,
	)

	result := &models.FullStudent{Courses: []string{}}
	if err := scanStudent(row, &result.Student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/getStudent(): error while `scanStudent()` calling: %w",
			err,
		)
	}

	rows, err := database.QueryContext(
		ctx,
		`SELECT course_name FROM courses WHERE student_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/getStudent(): error while `database.QueryContext()` calling: %w",
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
