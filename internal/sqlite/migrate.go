package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/random"
)

// migrateTo makes the database schema match schemaDefinition declaratively.
//
// Removed tables are dropped, new tables created and changed tables rebuilt with the 12-step procedure from
// https://www.sqlite.org/lang_altertable.html#otheralter, copying the columns the old and new definitions share.
// Indexes and triggers whose definition changed or disappeared are dropped and the target ones recreated.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) (err error) {
	// Step 1: Disable foreign key validation for the duration of the migration.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, errors.Wrap(fkErr, "re-enable foreign key validation"))
		}
	}()

	// The target schema is materialised in a scratch in-memory database so that it can be diffed with SQL.
	var targetName string
	if targetName, err = random.Letters(20); err != nil { //nolint:mnd // 20 letters is plenty
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", targetName)
	var target *sql.DB
	if target, err = sql.Open("sqlite3", targetDSN); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close schema target database"))
		}
	}()
	target.SetMaxOpenConns(1)
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "apply schema to target database")
	}

	// Step 2: Start transaction. ATTACH can't run inside a transaction, so the connection is pinned.
	var conn *sql.Conn
	if conn, err = db.ReadWrite.Conn(ctx); err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			err = errors.Join(err, errors.Wrap(detachErr, "detach schema target database"))
		}
	}()

	var tx *sql.Tx
	if tx, err = conn.BeginTx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		_ = tx.Rollback() // No-op after commit.
	}()

	// Steps 3 to 7.
	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	// Steps 8 and 9.
	if err = db.migrateObjects(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate indexes and triggers")
	}
	// Step 10: Check foreign key constraints.
	if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	// Step 11: Commit.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	// Step 12 is the deferred foreign key re-enable above.
	return nil
}

type schemaObject struct {
	typ  string
	name string
	sql  string
}

func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	deleted, err := queryObjects(ctx, tx, `SELECT current.type, current.name, current.sql
FROM main.sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.name IS NULL AND current.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deleted {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table.name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.name)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table.name))
		}
	}

	created, err := queryObjects(ctx, tx, `SELECT target.type, target.name, target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.name IS NULL AND target.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, table := range created {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", table.sql))
		if _, err = tx.ExecContext(ctx, table.sql); err != nil {
			return errors.Wrap(err, "create table", slog.String("table", table.name))
		}
	}

	changed, err := queryObjects(ctx, tx, `SELECT target.type, target.name, target.sql
FROM main.sqlite_schema AS current
JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`)
	if err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changed {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
			slog.String("table", table.name), slog.String("new_sql", table.sql))

		// Step 4: Create the new definition under a temporary name.
		tempName := table.name + "_migration_temp"
		if _, err = tx.ExecContext(ctx, strings.Replace(table.sql, table.name, tempName, 1)); err != nil {
			return errors.Wrap(err, "create temporary table", slog.String("table", tempName))
		}

		// Step 5: Copy the shared columns. Names are quoted since they may be SQLite keywords.
		var columns []string
		if columns, err = queryStrings(ctx, tx, `SELECT '"' || target.name || '"'
FROM pragma_table_info(:table_name) AS current
JOIN pragma_table_info(:table_name, 'schemaTarget') AS target ON target.name = current.name`,
			sql.Named("table_name", table.name)); err != nil {
			return errors.Wrap(err, "query common columns")
		}
		if len(columns) > 0 {
			common := strings.Join(columns, ", ")
			copySQL := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", //nolint:gosec // names come from the schema.
				tempName, common, common, table.name)
			if _, err = tx.ExecContext(ctx, copySQL); err != nil {
				return errors.Wrap(err, "copy data", slog.String("query", copySQL))
			}
		}

		// Steps 6 and 7: Swap the tables.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.name)); err != nil {
			return errors.Wrap(err, "drop old table")
		}
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tempName, table.name)); err != nil {
			return errors.Wrap(err, "rename new table")
		}
	}
	return nil
}

// migrateObjects synchronises indexes and triggers. It runs after the tables since rebuilt tables lose theirs.
func (db *Database) migrateObjects(ctx context.Context, tx *sql.Tx) error {
	stale, err := queryObjects(ctx, tx, `SELECT current.type, current.name, current.sql
FROM main.sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type IN ('index', 'trigger') AND current.sql IS NOT NULL
  AND (target.name IS NULL OR current.sql <> target.sql)`)
	if err != nil {
		return errors.Wrap(err, "query stale objects")
	}
	for _, obj := range stale {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping schema object",
			slog.String("type", obj.typ), slog.String("name", obj.name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s %q", strings.ToUpper(obj.typ), obj.name)); err != nil {
			return errors.Wrap(err, "drop schema object", slog.String("name", obj.name))
		}
	}

	missing, err := queryObjects(ctx, tx, `SELECT target.type, target.name, target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type IN ('index', 'trigger') AND target.sql IS NOT NULL AND current.name IS NULL`)
	if err != nil {
		return errors.Wrap(err, "query missing objects")
	}
	for _, obj := range missing {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating schema object",
			slog.String("type", obj.typ), slog.String("query", obj.sql))
		if _, err = tx.ExecContext(ctx, obj.sql); err != nil {
			return errors.Wrap(err, "create schema object", slog.String("name", obj.name))
		}
	}
	return nil
}

func queryObjects(ctx context.Context, tx *sql.Tx, query string) ([]schemaObject, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()
	var objects []schemaObject
	for rows.Next() {
		var obj schemaObject
		if err = rows.Scan(&obj.typ, &obj.name, &obj.sql); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		objects = append(objects, obj)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return objects, nil
}

// queryStrings returns the single string column of query.
func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()
	var results []string
	for rows.Next() {
		var result string
		if err = rows.Scan(&result); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return results, nil
}
