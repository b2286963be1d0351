// Package postgresdb provides a PostgreSQL-based implementation of the storage
// contract for users and their tasks. The schema is managed by goose migrations.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

const uniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping all tables before migration.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.UpContext()` calling: %w", err)
	}

	return result, nil
}

// CreateUser inserts a new user and returns the generated ID.
// A taken username yields storage.ErrUserAlreadyExists.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		usr.Username,
		usr.PasswordHash,
	)

	var userID string
	if err := row.Scan(&userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return "", storage.ErrUserAlreadyExists
		}
		return "", err
	}

	return userID, nil
}

func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`,
		username,
	)

	usr := &user.User{}
	if err := row.Scan(&usr.ID, &usr.Username, &usr.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}

func (db *PostgresDB) GetUsers(ctx context.Context) ([]user.User, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, username, password_hash FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []user.User{}
	for rows.Next() {
		var usr user.User
		if err := rows.Scan(&usr.ID, &usr.Username, &usr.PasswordHash); err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteUser removes the user and their tasks in one transaction and returns
// the removed record.
func (db *PostgresDB) DeleteUser(ctx context.Context, userID string) (*user.User, error) {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	row := transaction.QueryRowContext(
		ctx,
		`DELETE FROM users WHERE id = $1 RETURNING id, username, password_hash`,
		userID,
	)

	usr := &user.User{}
	if err := row.Scan(&usr.ID, &usr.Username, &usr.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	if _, err := transaction.ExecContext(ctx, `DELETE FROM tasks WHERE username = $1`, usr.Username); err != nil {
		return nil, err
	}

	if err := transaction.Commit(); err != nil {
		return nil, err
	}

	return usr, nil
}

func (db *PostgresDB) InsertTask(ctx context.Context, task *models.Task) (string, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO tasks (username, task, arbitrage_rate, currency, usd, zar)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
		`,
		task.Username,
		task.Task,
		task.ArbitrageRate,
		task.Currency,
		task.USD,
		task.ZAR,
	)

	var taskID string
	if err := row.Scan(&taskID); err != nil {
		return "", err
	}

	return taskID, nil
}

// GetTasksByUsername returns the user's tasks in insertion order.
func (db *PostgresDB) GetTasksByUsername(ctx context.Context, username string) (models.Tasks, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, username, task, arbitrage_rate, currency, usd, zar
				FROM tasks
				WHERE username = $1
				ORDER BY created_at, id
		`,
		username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := models.Tasks{}
	for rows.Next() {
		var task models.Task
		err := rows.Scan(
			&task.ID,
			&task.Username,
			&task.Task,
			&task.ArbitrageRate,
			&task.Currency,
			&task.USD,
			&task.ZAR,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) UpdateTaskText(ctx context.Context, taskID, username, text string) error {
	result, err := db.database.ExecContext(
		ctx,
		`UPDATE tasks SET task = $1 WHERE id = $2 AND username = $3`,
		text,
		taskID,
		username,
	)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

func (db *PostgresDB) DeleteTask(ctx context.Context, taskID, username string) error {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE id = $1 AND username = $2`,
		taskID,
		username,
	)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

// DeleteOrphanTasks removes, in one transaction, the tasks of the given owners
// that have no row in users.
func (db *PostgresDB) DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error) {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	var removed int64
	for _, username := range usernames {
		result, err := transaction.ExecContext(
			ctx,
			`
				DELETE FROM tasks
					WHERE username = $1
						AND NOT EXISTS (SELECT 1 FROM users WHERE users.username = tasks.username)
			`,
			username,
		)
		if err != nil {
			return 0, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += affected
	}

	if err := transaction.Commit(); err != nil {
		return 0, err
	}

	return removed, nil
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

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
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
