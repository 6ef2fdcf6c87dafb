package logger

// Writer is an object that provides a log method.
type Writer interface {
	Log(Level, string, ...any)
}

// Prefixed wraps a Writer and prepends a tag to every line.
type Prefixed struct {
	Prefix string
	Parent Writer
}

// Log implements Writer.
func (p *Prefixed) Log(level Level, format string, args ...any) {
	p.Parent.Log(level, p.Prefix+" "+format, args...)
}

// Discard drops every line.
var Discard Writer = discard{}

type discard struct{}

func (discard) Log(Level, string, ...any) {}
