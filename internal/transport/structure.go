package transport

// Field is a named statistics value.
type Field struct {
	Name  string
	Value any
}

// Structure is an ordered set of statistics fields.
type Structure []Field

// Get returns the value of a field.
func (s Structure) Get(name string) (any, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Add appends a field.
func (s *Structure) Add(name string, value any) {
	*s = append(*s, Field{Name: name, Value: value})
}
