package transport

// PropertyName returns the name under which a user property is set on an element.
func PropertyName(kind Kind, role Role, name string) string {
	if role == RoleSink && kind == KindUDP && name == "address" {
		return "host"
	}
	return name
}

// ConfigureSource applies the fixed policy of each source variant.
// It must be called after user properties, which it overrides.
func ConfigureSource(s Source) {
	s.SetProperty("do-timestamp", true)

	if ss, ok := s.(*srtSource); ok {
		// callers are authenticated only when a stream ID is expected
		ss.authentication = ss.streamID != ""
	}
}

// ConfigureSink applies the fixed policy of each sink variant.
// It must be called after user properties, which it overrides.
func ConfigureSink(s Sink) {
	switch s.Kind() {
	case KindUDP:
		s.SetProperty("sync", false)
		s.SetProperty("async", false)

	case KindSRT:
		s.SetProperty("sync", false)
		s.SetProperty("async", false)
		s.SetProperty("wait-for-connection", true)
	}
}
