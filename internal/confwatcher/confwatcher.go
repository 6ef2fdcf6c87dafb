// Package confwatcher contains a watcher of the pipeline document.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	minInterval    = 1 * time.Second
	additionalWait = 10 * time.Millisecond
)

// ConfWatcher signals changes of a file.
type ConfWatcher struct {
	FilePath string

	inner         *fsnotify.Watcher
	watchedPath   string
	lastTarget    string
	lastSignalled time.Time

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes a ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	absolutePath, err := filepath.Abs(w.FilePath)
	if err != nil {
		return err
	}

	_, err = os.Stat(absolutePath)
	if err != nil {
		return err
	}

	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// watch the parent directory, in order to handle editors
	// and volume mounts that replace the file instead of writing it.
	parentPath := filepath.Dir(absolutePath)
	err = inner.Add(parentPath)
	if err != nil {
		inner.Close() //nolint:errcheck
		return err
	}

	w.inner = inner
	w.watchedPath = absolutePath
	w.lastTarget, _ = filepath.EvalSymlinks(absolutePath)
	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal { //nolint:revive
		}
	}()
	w.inner.Close() //nolint:errcheck
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)
	defer close(w.signal)

	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}

			if time.Since(w.lastSignalled) < minInterval {
				continue
			}

			currentTarget, _ := filepath.EvalSymlinks(w.watchedPath)
			eventPath, _ := filepath.Abs(event.Name)
			eventTarget, _ := filepath.EvalSymlinks(eventPath)

			if currentTarget == "" {
				continue
			}

			switch {
			case currentTarget != w.lastTarget,
				(eventPath == w.watchedPath || eventTarget == currentTarget) &&
					(event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create):
				w.lastTarget = currentTarget

				// wait some additional time to allow the writer to complete its job
				time.Sleep(additionalWait)

				w.lastSignalled = time.Now()
				w.signal <- struct{}{}
			}

		case _, ok := <-w.inner.Errors:
			if !ok {
				return
			}
		}
	}
}

// Watch returns a channel that is called after the file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
