package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/types"
)

// InstitutionRepository handles persistence for institutions.
type InstitutionRepository struct {
	db *sql.DB
}

func NewInstitutionRepository(db *sql.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func (r *InstitutionRepository) Create(ctx context.Context, institution types.Institution) (types.Institution, error) {
	if institution.ID == uuid.Nil {
		institution.ID = uuid.New()
	}
	institution.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO institutions (id, name, email_domain, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, institution.ID, institution.Name, institution.EmailDomain, institution.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return types.Institution{}, ErrConflict
		}
		return types.Institution{}, err
	}
	return institution, nil
}

func (r *InstitutionRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Institution, error) {
	const query = `
		SELECT id, name, email_domain, created_at
		FROM institutions
		WHERE id = $1`
	var institution types.Institution
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&institution.ID,
		&institution.Name,
		&institution.EmailDomain,
		&institution.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Institution{}, ErrNotFound
		}
		return types.Institution{}, err
	}
	return institution, nil
}

func (r *InstitutionRepository) List(ctx context.Context) ([]types.Institution, error) {
	const query = `
		SELECT id, name, email_domain, created_at
		FROM institutions
		ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	institutions := make([]types.Institution, 0)
	for rows.Next() {
		var institution types.Institution
		if err := rows.Scan(&institution.ID, &institution.Name, &institution.EmailDomain, &institution.CreatedAt); err != nil {
			return nil, err
		}
		institutions = append(institutions, institution)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return institutions, nil
}
