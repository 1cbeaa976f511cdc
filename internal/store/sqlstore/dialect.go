package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"liveline/internal/queue"
)

// Dialect captures the few places MySQL and SQLite differ.
type Dialect struct {
	Name      string
	goose     string
	forUpdate string
}

var (
	MySQL  = Dialect{Name: "mysql", goose: "mysql", forUpdate: " FOR UPDATE"}
	SQLite = Dialect{Name: "sqlite", goose: "sqlite3"}
)

func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects to the database and pings it. MySQL DSNs are forced to
// parse times in UTC and report matched rows; a bare SQLite path gets
// foreign keys and a busy timeout.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dialect.Name {
	case MySQL.Name:
		cfg, perr := mysql.ParseDSN(dsn)
		if perr != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", perr)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.ClientFoundRows = true

		db, err = sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

	case SQLite.Name:
		if !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
			dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn)
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// one writer at a time; the engine serializes per queue anyway
		db.SetMaxOpenConns(1)

	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect.Name)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", dialect.Name, err)
	}
	return db, nil
}

// translate maps lock timeouts and deadlocks to queue.ErrConcurrencyConflict.
func translate(err error) error {
	if err == nil || !isConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %v", queue.ErrConcurrencyConflict, err)
}

func isConflict(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// ER_LOCK_WAIT_TIMEOUT, ER_LOCK_DEADLOCK
		return me.Number == 1205 || me.Number == 1213
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
