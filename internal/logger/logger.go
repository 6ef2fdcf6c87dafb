// Package logger contains a leveled logger.
package logger

import (
	"sync"
	"time"
)

// Logger is a log handler.
type Logger struct {
	level Level

	destinations []destination
	mutex        sync.Mutex
}

// New allocates a log handler.
func New(level Level, destinations []Destination, filePath string) (*Logger, error) {
	lh := &Logger{
		level: level,
	}

	for _, destType := range destinations {
		switch destType {
		case DestinationStdout:
			lh.destinations = append(lh.destinations, newDestinationStdout())

		case DestinationFile:
			dest, err := newDestinationFile(filePath)
			if err != nil {
				lh.Close()
				return nil, err
			}
			lh.destinations = append(lh.destinations, dest)
		}
	}

	return lh, nil
}

// Close closes a log handler.
func (lh *Logger) Close() {
	for _, dest := range lh.destinations {
		dest.close()
	}
}

// Log writes a log entry.
func (lh *Logger) Log(level Level, format string, args ...any) {
	if level < lh.level {
		return
	}

	lh.mutex.Lock()
	defer lh.mutex.Unlock()

	t := time.Now()
	for _, dest := range lh.destinations {
		dest.log(t, level, format, args...)
	}
}
