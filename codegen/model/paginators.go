package model

import "encoding/json"

// Paginators is the paginator side file: pagination hints keyed by
// operation name.
type Paginators struct {
	Pagination map[string]PaginatorDefinition `json:"pagination"`
}

// PaginatorDefinition names the members that carry continuation state for
// one operation.
type PaginatorDefinition struct {
	InputToken  MemberPath `json:"input_token"`
	OutputToken MemberPath `json:"output_token"`
	LimitKey    string     `json:"limit_key,omitempty"`
	MoreResults string     `json:"more_results,omitempty"`
	ResultKey   MemberPath `json:"result_key,omitempty"`
}

// Valid reports whether the definition can actually drive pagination.
// Definitions missing an input or output token are skipped, leaving the
// operation unpaginated.
func (d PaginatorDefinition) Valid() bool {
	return len(d.InputToken) > 0 && len(d.OutputToken) > 0
}

// Get returns the definition for an operation. Operations without an entry,
// or with an invalid one, are not paginated.
func (p *Paginators) Get(operation string) (PaginatorDefinition, bool) {
	if p == nil {
		return PaginatorDefinition{}, false
	}
	d, ok := p.Pagination[operation]
	if !ok || !d.Valid() {
		return PaginatorDefinition{}, false
	}
	return d, true
}

// MemberPath is one or more member names. Paginator files use both a single
// string and a list of strings for the same field, so both forms decode.
type MemberPath []string

func (p *MemberPath) UnmarshalJSON(raw []byte) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		*p = MemberPath{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*p = MemberPath(many)
	return nil
}

func (p MemberPath) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}

// First returns the first member name, or "" for an empty path.
func (p MemberPath) First() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}
