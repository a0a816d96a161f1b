package taskdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

const schema = `
create table if not exists pdf_tasks (
    id            text primary key,
    filename      text not null default '',
    status        text not null,
    num_pages     integer,
    error_message text,
    created_at    timestamptz not null,
    updated_at    timestamptz not null
)`

// Open connects to Postgres through the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

// Postgres stores tasks in the pdf_tasks table.
type Postgres struct{ DB *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{DB: db} }

// EnsureSchema creates the table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, id, filename string) (Task, error) {
	now := time.Now().UTC()
	const q = `insert into pdf_tasks (id, filename, status, created_at, updated_at) values ($1, $2, $3, $4, $4)`
	if _, err := p.DB.ExecContext(ctx, q, id, filename, string(StatusPending), now); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return Task{ID: id, Filename: filename, Status: StatusPending, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status Status, numPages *int, errMsg *string) error {
	const q = `update pdf_tasks set status=$1, updated_at=$2, num_pages=$3, error_message=$4 where id=$5`
	res, err := p.DB.ExecContext(ctx, q, string(status), time.Now().UTC(), numPages, errMsg, id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(res)
}

const selectTask = `select id, filename, status, num_pages, error_message, created_at, updated_at from pdf_tasks`

func (p *Postgres) Get(ctx context.Context, id string) (Task, error) {
	row := p.DB.QueryRowContext(ctx, selectTask+` where id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) List(ctx context.Context) ([]Task, error) {
	rows, err := p.DB.QueryContext(ctx, selectTask+` order by created_at desc`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `delete from pdf_tasks where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (Task, error) {
	var (
		t        Task
		status   string
		numPages sql.NullInt64
		errMsg   sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Filename, &status, &numPages, &errMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = Status(status)
	if numPages.Valid {
		t.NumPages = Int(int(numPages.Int64))
	}
	if errMsg.Valid {
		t.ErrorMessage = String(errMsg.String)
	}
	return t, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
