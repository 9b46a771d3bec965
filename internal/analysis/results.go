package analysis

// Assessment is the rated level for one skill.
type Assessment struct {
	Level         int    `json:"level" yaml:"level"`
	Justification string `json:"justification" yaml:"justification"`
}

// Results maps skill names to assessments in matrix order. Setting a skill
// that is already present replaces its assessment but keeps its position.
type Results struct {
	order []string
	items map[string]Assessment
}

// NewResults creates an empty Results.
func NewResults() *Results {
	return &Results{items: make(map[string]Assessment)}
}

// Set records the assessment for skill.
func (r *Results) Set(skill string, a Assessment) {
	if _, ok := r.items[skill]; !ok {
		r.order = append(r.order, skill)
	}
	r.items[skill] = a
}

// Get returns the assessment for skill.
func (r *Results) Get(skill string) (Assessment, bool) {
	a, ok := r.items[skill]
	return a, ok
}

// Skills returns skill names in insertion order.
func (r *Results) Skills() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct skills.
func (r *Results) Len() int {
	return len(r.order)
}
