package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"oauthbridge.io/bridge/internal/action"
)

// EntitySink writes login action attributes into configured entity tables.
// Table and column names come from a validated action.Catalog and are quoted
// with pgx.Identifier.
type EntitySink struct {
	db DBTX
}

// Upsert updates the rows matching keys, inserting attrs when none match.
// Both statements run in one transaction. When the entity declares a unique
// key and keys is exactly that key, a single INSERT ... ON CONFLICT is used
// instead, which is safe under concurrent logins.
func (s *EntitySink) Upsert(ctx context.Context, entity *action.EntityDescriptor, keys []string, attrs map[string]action.Value) error {
	if len(keys) == 0 {
		return fmt.Errorf("upsert %s: no key columns", entity.Name)
	}
	cols, args, err := columnsAndArgs(entity, attrs)
	if err != nil {
		return err
	}
	table := pgx.Identifier{entity.Table}.Sanitize()

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := attrs[k]; !ok {
			return fmt.Errorf("upsert %s: key %q has no value", entity.Name, k)
		}
		isKey[k] = true
	}

	if entity.UniqueKey && len(keys) == 1 && keys[0] == entity.Key {
		_, err := s.db.Exec(ctx, onConflictStatement(table, cols, entity.Key), args...)
		return mapError(err, "upsert "+entity.Name)
	}

	var sets, where []string
	for i, col := range cols {
		ident := pgx.Identifier{col}.Sanitize()
		placeholder := fmt.Sprintf("$%d", i+1)
		if isKey[col] {
			where = append(where, ident+" = "+placeholder)
		} else {
			sets = append(sets, ident+" = "+placeholder)
		}
	}

	return inTx(ctx, s.db, func(tx DBTX) error {
		var matched int64
		if len(sets) > 0 {
			tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
				table, strings.Join(sets, ", "), strings.Join(where, " AND ")), args...)
			if err != nil {
				return mapError(err, "update "+entity.Name)
			}
			matched = tag.RowsAffected()
		} else {
			err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`,
				table, strings.Join(where, " AND ")), args...).Scan(&matched)
			if err != nil {
				return mapError(err, "match "+entity.Name)
			}
		}
		if matched > 0 {
			return nil
		}
		return insertRow(ctx, tx, entity, table, cols, args)
	})
}

// onConflictStatement builds an insert that updates the non-key columns
// when a row with the same key exists.
func onConflictStatement(table string, cols []string, key string) string {
	idents := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	var sets []string
	for i, col := range cols {
		idents[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != key {
			sets = append(sets, idents[i]+" = EXCLUDED."+idents[i])
		}
	}
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s`,
		table, strings.Join(idents, ", "), strings.Join(placeholders, ", "),
		pgx.Identifier{key}.Sanitize(), conflict)
}

// Insert appends a row.
func (s *EntitySink) Insert(ctx context.Context, entity *action.EntityDescriptor, attrs map[string]action.Value) error {
	cols, args, err := columnsAndArgs(entity, attrs)
	if err != nil {
		return err
	}
	return insertRow(ctx, s.db, entity, pgx.Identifier{entity.Table}.Sanitize(), cols, args)
}

func insertRow(ctx context.Context, db DBTX, entity *action.EntityDescriptor, table string, cols []string, args []any) error {
	idents := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		idents[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	_, err := db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(idents, ", "), strings.Join(placeholders, ", ")), args...)
	return mapError(err, "insert "+entity.Name)
}

// columnsAndArgs orders attributes by column name and rejects undeclared ones.
func columnsAndArgs(entity *action.EntityDescriptor, attrs map[string]action.Value) ([]string, []any, error) {
	if len(attrs) == 0 {
		return nil, nil, fmt.Errorf("write %s: no attributes", entity.Name)
	}
	cols := make([]string, 0, len(attrs))
	for col := range attrs {
		if !entity.HasColumn(col) {
			return nil, nil, fmt.Errorf("write %s: undeclared column %q", entity.Name, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, col := range cols {
		v, err := attrs[col].SQLArg()
		if err != nil {
			return nil, nil, fmt.Errorf("write %s.%s: %w", entity.Name, col, err)
		}
		args[i] = v
	}
	return cols, args, nil
}
