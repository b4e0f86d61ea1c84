package repo

import (
	"context"
	"errors"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil { return errors.New("advisory unlock returned false") }
	return err
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context) (int64, error) {
	const q = `INSERT INTO job_runs(started_at, success) VALUES(now(), false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil { return 0, err }
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, issuesSynced, cyclesComputed, flaggedIssues int, success bool, errStr string) error {
	const q = `UPDATE job_runs SET finished_at=now(), issues_synced=$2, cycles_computed=$3, flagged_issues=$4, success=$5, error=$6 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, issuesSynced, cyclesComputed, flaggedIssues, success, errStr)
	return err
}

type LastRun struct {
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	IssuesSynced   int        `json:"issues_synced"`
	CyclesComputed int        `json:"cycles_computed"`
	FlaggedIssues  int        `json:"flagged_issues"`
	Success        bool       `json:"success"`
	Error          string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT started_at, finished_at,
		coalesce(issues_synced,0), coalesce(cycles_computed,0), coalesce(flagged_issues,0),
		coalesce(success,false), coalesce(error,'')
		FROM job_runs ORDER BY id DESC LIMIT 1`
	row := r.db.Pool.QueryRow(ctx, q)
	lr := &LastRun{}
	if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.IssuesSynced, &lr.CyclesComputed, &lr.FlaggedIssues, &lr.Success, &lr.Error); err != nil {
		return nil, err
	}
	return lr, nil
}
