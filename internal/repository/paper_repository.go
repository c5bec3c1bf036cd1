package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// ErrPaperNotFound is returned when no published paper has the requested id.
var ErrPaperNotFound = errors.New("paper not found")

// PaperRepository handles paper data access. A paper is stored whole as JSONB.
type PaperRepository struct {
	pool *pgxpool.Pool
}

// NewPaperRepository creates a new PaperRepository.
func NewPaperRepository(pool *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{pool: pool}
}

// GetByID retrieves a published paper.
func (r *PaperRepository) GetByID(ctx context.Context, id string) (*model.Paper, error) {
	var definition []byte
	err := r.pool.QueryRow(ctx,
		`SELECT definition FROM papers WHERE id = $1 AND published = TRUE`, id,
	).Scan(&definition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaperNotFound
		}
		return nil, err
	}

	var p model.Paper
	if err := json.Unmarshal(definition, &p); err != nil {
		return nil, fmt.Errorf("decode paper %s: %w", id, err)
	}
	return &p, nil
}

// ListPublishedIDs returns the ids of all published papers.
func (r *PaperRepository) ListPublishedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM papers WHERE published = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert creates or replaces a paper definition.
func (r *PaperRepository) Upsert(ctx context.Context, p *model.Paper, published bool) error {
	definition, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO papers (id, title, definition, published)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, definition = EXCLUDED.definition,
		     published = EXCLUDED.published, updated_at = NOW()`,
		p.ID, p.Title, definition, published,
	)
	return err
}
