package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateInvalidText         = "22P02"
	sqlStateNumericOutOfRange   = "22003"
)

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func newBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// withTx runs fn inside a transaction, rolling back when fn or the commit fails.
func withTx(ctx context.Context, exec pgExecutor, fn func(tx pgx.Tx) error) error {
	tx, err := exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// mapWriteError converts constraint violations into repository.ConstraintError.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return &repository.ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
	case sqlStateForeignKeyViolation:
		return &repository.ConstraintError{Constraint: repository.ConstraintForeignKey, Err: err}
	default:
		return err
	}
}

// isMalformedKey reports whether the server rejected a key value that cannot exist in the column type.
func isMalformedKey(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateInvalidText || pgErr.Code == sqlStateNumericOutOfRange
}

// readError maps missing rows and malformed keys to repository.ErrNotFound.
func readError(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) || isMalformedKey(err) {
		return repository.ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// searchCondition ORs a case-insensitive substring match across columns.
func searchCondition(term string, columns ...string) squirrel.Sqlizer {
	pattern := containsPattern(term)
	or := make(squirrel.Or, 0, len(columns))
	for _, column := range columns {
		or = append(or, squirrel.ILike{column: pattern})
	}
	return or
}

func applyFilter(query squirrel.SelectBuilder, filter port.ListFilter, withModule bool, searchColumns ...string) squirrel.SelectBuilder {
	if term := strings.TrimSpace(filter.Search); term != "" {
		query = query.Where(searchCondition(term, searchColumns...))
	}
	if withModule {
		if module := strings.TrimSpace(filter.Module); module != "" {
			query = query.Where(squirrel.Eq{"module": module})
		}
	}
	return query
}

// applyOrderAndPage orders by qualified columns so the text-cast id output column never shadows the key.
func applyOrderAndPage(query squirrel.SelectBuilder, table string, filter port.ListFilter, sortable map[string]struct{}) squirrel.SelectBuilder {
	if _, ok := sortable[filter.SortField]; ok && filter.SortField != "" {
		direction := "ASC"
		if filter.SortDesc {
			direction = "DESC"
		}
		query = query.OrderBy(table+"."+filter.SortField+" "+direction, table+".id "+direction)
	} else {
		query = query.OrderBy(table+".created_at DESC", table+".id DESC")
	}

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}
	return query
}

func countRows(ctx context.Context, exec pgExecutor, query squirrel.SelectBuilder, label string) (int, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s sql: %w", label, err)
	}

	var total int64
	if err := exec.QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return int(total), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
