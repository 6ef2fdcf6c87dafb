package pipeline

// ConfigError is returned when the pipeline document cannot be turned into a graph.
type ConfigError struct {
	Err error
}

// Error implements error.
func (e ConfigError) Error() string {
	return "invalid pipeline: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e ConfigError) Unwrap() error {
	return e.Err
}

// LinkError is returned when graph elements cannot be connected.
type LinkError struct {
	Err error
}

// Error implements error.
func (e LinkError) Error() string {
	return "unable to link pipeline: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e LinkError) Unwrap() error {
	return e.Err
}
