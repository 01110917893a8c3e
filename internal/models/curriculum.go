package models

// CurriculumModule is an ordered curriculum unit with a fixed number of
// planned lessons. Immutable once referenced by attendance records.
type CurriculumModule struct {
	ID             string  `db:"id" json:"id"`
	Number         int     `db:"numero" json:"numero"`
	Title          string  `db:"titulo" json:"titulo"`
	PlannedLessons int     `db:"total_licoes" json:"total_licoes"`
	NextModuleID   *string `db:"proximo_modulo_id" json:"proximo_modulo_id,omitempty"`
}

// HasNext reports whether the curriculum continues after this module.
func (m *CurriculumModule) HasNext() bool {
	return m != nil && m.NextModuleID != nil && *m.NextModuleID != ""
}
