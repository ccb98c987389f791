package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) SaveExchange(ctx context.Context, e *Exchange) error {
	filter, err := json.Marshal(e.Filter)
	if err != nil {
		return err
	}
	sources, err := json.Marshal(e.Sources)
	if err != nil {
		return err
	}
	query := `INSERT INTO chat_history (question, answer, filter, sources) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, e.Question, e.Answer, filter, sources).Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresRepo) SaveFeedback(ctx context.Context, f *Feedback) error {
	query := `INSERT INTO feedback (query_id, rating, comments) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, f.QueryID, f.Rating, f.Comments).Scan(&f.ID, &f.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return ErrUnknownQuery
	}
	return err
}

func (r *PostgresRepo) CountExchanges(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history`).Scan(&count)
	return count, err
}
