package project

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `id, repo_url, branch, repo_name, processed, num_chunks, error, created_at, updated_at`

func (r *PostgresRepo) Save(ctx context.Context, p *Project) error {
	query := `INSERT INTO code_projects (repo_url, branch, repo_name) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, p.RepoURL, p.Branch, p.RepoName).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	query := `SELECT ` + selectColumns + ` FROM code_projects WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.RepoURL, &p.Branch, &p.RepoName, &p.Processed, &p.NumChunks, &p.Error, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Project, error) {
	query := `SELECT ` + selectColumns + ` FROM code_projects ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.RepoURL, &p.Branch, &p.RepoName, &p.Processed, &p.NumChunks, &p.Error, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM code_projects WHERE id = $1`, id)
}

func (r *PostgresRepo) Reset(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE code_projects SET processed = FALSE, error = '', updated_at = NOW() WHERE id = $1`, id)
}

func (r *PostgresRepo) MarkProcessed(ctx context.Context, id string, numChunks int) error {
	query := `UPDATE code_projects SET processed = TRUE, num_chunks = $1, error = '', updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, numChunks, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE code_projects SET processed = FALSE, error = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, reason, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_projects`).Scan(&count)
	return count, err
}

// exec runs a single-row statement and reports sql.ErrNoRows when nothing
// matched.
func (r *PostgresRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
