package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/docman/internal/model"
)

// psql はPostgreSQL用（$1, $2...）のプレースホルダでクエリを組み立てる。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx はfnをトランザクション内で実行する。fnがエラーを返した場合はロールバックする。
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// validID はidがUUIDとして解釈できるかを返す。
// idカラムはUUID型なので、解釈できないIDに一致する行は存在しない。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// paginate はOFFSET/LIMITを付与する。範囲外の値はmodel.NewPageで丸める。
func paginate(b sq.SelectBuilder, page model.Page) sq.SelectBuilder {
	page = model.NewPage(page.Skip, page.Limit)
	return b.Offset(uint64(page.Skip)).Limit(uint64(page.Limit))
}

// likePattern は部分一致検索用のパターンを返す。入力中の % と _ はエスケープする。
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

// queryOne はbuilderのクエリを実行し、1行をscanで読み取る。行がなければfalseを返す。
func queryOne(ctx context.Context, q queryer, b sq.Sqlizer, scan func(rowScanner) error) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}
	err = scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// queryAll はbuilderのクエリを実行し、各行をscanで読み取る。
func queryAll(ctx context.Context, q queryer, b sq.Sqlizer, scan func(rowScanner) error) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// exec はbuilderのクエリを実行し、影響行数を返す。
func exec(ctx context.Context, q queryer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
