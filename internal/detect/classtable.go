package detect

import "strconv"

// ClassTable is the normalized class-id→label table, resolved once at model
// load time. Read-only after construction.
type ClassTable struct {
	names []string
}

// NewClassTable builds a table from the model's ordered class list.
func NewClassTable(names []string) *ClassTable {
	return &ClassTable{names: names}
}

// Lookup returns the label for a class id; unknown ids are stringified.
func (t *ClassTable) Lookup(id int) string {
	if t != nil && id >= 0 && id < len(t.names) {
		return t.names[id]
	}
	return strconv.Itoa(id)
}

// Names returns the ordered class list.
func (t *ClassTable) Names() []string {
	if t == nil {
		return nil
	}
	return t.names
}

// Len reports how many classes the model declares.
func (t *ClassTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
