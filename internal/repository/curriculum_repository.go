package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// CurriculumRepository resolves curriculum modules and their ordering.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// FindByID returns a module with its planned lesson count and the id of
// the next module in curriculum order, when one exists.
func (r *CurriculumRepository) FindByID(ctx context.Context, id string) (*models.CurriculumModule, error) {
	const query = `
SELECT m.id, m.numero, m.titulo,
	(SELECT COUNT(*) FROM licoes l WHERE l.modulo_id = m.id) AS total_licoes,
	(SELECT n.id FROM modulos n WHERE n.numero > m.numero ORDER BY n.numero ASC LIMIT 1) AS proximo_modulo_id
FROM modulos m
WHERE m.id = $1`
	var module models.CurriculumModule
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}
