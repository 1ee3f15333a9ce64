// Package reports runs read-only consistency and circulation reports.
//
// Queries are built with goqu for the active dialect and executed through
// sqlx on the same connection pool gorm uses, so they see the same data
// without going through the ORM.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// AvailabilityDrift is a book whose recorded available_copies differs from
// the number of live available copies.
type AvailabilityDrift struct {
	BookID   uint   `db:"book_id" json:"book_id"`
	Title    string `db:"title" json:"title"`
	Recorded int    `db:"recorded" json:"recorded"`
	Actual   int    `db:"actual" json:"actual"`
}

// OverdueLoan is an active loan past its due date.
type OverdueLoan struct {
	LoanID    uint      `db:"loan_id" json:"loan_id"`
	UserID    uint      `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	BookID    uint      `db:"book_id" json:"book_id"`
	BookTitle string    `db:"book_title" json:"book_title"`
	DueDate   time.Time `db:"due_date" json:"due_date"`
}

// Summary is a snapshot of circulation totals.
type Summary struct {
	Books           int64 `db:"books" json:"books"`
	Copies          int64 `db:"copies" json:"copies"`
	AvailableCopies int64 `db:"available_copies" json:"available_copies"`
	ActiveLoans     int64 `db:"active_loans" json:"active_loans"`
	AccruedFines    int64 `db:"accrued_fines" json:"accrued_fines"`
	AccruedAmount   int64 `db:"accrued_amount" json:"accrued_amount"`
}

type Repository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// NewRepository wraps the database's connection pool for report queries.
func NewRepository(db *database.Database) (*Repository, error) {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &Repository{
		db:      sqlx.NewDb(sqlDB, db.Dialect()),
		dialect: goqu.Dialect(db.Dialect()),
	}, nil
}

// AvailabilityDrift lists books whose counter disagrees with their copies.
func (r *Repository) AvailabilityDrift(ctx context.Context) ([]AvailabilityDrift, error) {
	actual := goqu.COUNT(goqu.I("c.id"))
	stmt := r.dialect.
		From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("copies").As("c"), goqu.On(
			goqu.I("c.book_id").Eq(goqu.I("b.id")),
			goqu.I("c.status").Eq(string(entities.CopyStatusAvailable)),
			goqu.I("c.deleted_at").IsNull(),
		)).
		Select(
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("b.available_copies").As("recorded"),
			actual.As("actual"),
		).
		Where(goqu.I("b.deleted_at").IsNull()).
		GroupBy(goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.available_copies")).
		Having(goqu.I("b.available_copies").Neq(actual)).
		Order(goqu.I("b.id").Asc())

	var rows []AvailabilityDrift
	if err := r.selectInto(ctx, &rows, stmt); err != nil {
		return nil, fmt.Errorf("availability drift: %w", err)
	}
	return rows, nil
}

// OverdueLoans lists active loans whose due date is before asOf, most
// overdue first.
func (r *Repository) OverdueLoans(ctx context.Context, asOf time.Time, limit uint) ([]OverdueLoan, error) {
	stmt := r.dialect.
		From(goqu.T("loans").As("l")).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Join(goqu.T("copies").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("l.copy_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("c.book_id")))).
		Select(
			goqu.I("l.id").As("loan_id"),
			goqu.I("l.user_id").As("user_id"),
			goqu.I("u.username").As("username"),
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("l.due_date").As("due_date"),
		).
		Where(
			goqu.I("l.status").Eq(string(entities.LoanStatusActive)),
			goqu.I("l.due_date").Lt(asOf),
		).
		Order(goqu.I("l.due_date").Asc(), goqu.I("l.id").Asc())
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var rows []OverdueLoan
	if err := r.selectInto(ctx, &rows, stmt); err != nil {
		return nil, fmt.Errorf("overdue loans: %w", err)
	}
	return rows, nil
}

// Summary returns circulation totals.
func (r *Repository) Summary(ctx context.Context) (*Summary, error) {
	count := func(table string, where ...goqu.Expression) *goqu.SelectDataset {
		return r.dialect.From(table).Select(goqu.COUNT(goqu.Star())).Where(where...)
	}
	stmt := r.dialect.Select(
		count("books", goqu.C("deleted_at").IsNull()).As("books"),
		count("copies", goqu.C("deleted_at").IsNull()).As("copies"),
		count("copies", goqu.C("deleted_at").IsNull(), goqu.C("status").Eq(string(entities.CopyStatusAvailable))).As("available_copies"),
		count("loans", goqu.C("status").Eq(string(entities.LoanStatusActive))).As("active_loans"),
		count("fines", goqu.C("status").Eq(string(entities.FineStatusAccrued))).As("accrued_fines"),
		r.dialect.From("fines").
			Select(goqu.COALESCE(goqu.SUM(goqu.C("amount")), 0)).
			Where(goqu.C("status").Eq(string(entities.FineStatusAccrued))).
			As("accrued_amount"),
	)

	var s Summary
	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build summary query: %w", err)
	}
	if err := r.db.GetContext(ctx, &s, query, args...); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return &s, nil
}

func (r *Repository) selectInto(ctx context.Context, dest any, stmt *goqu.SelectDataset) error {
	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
