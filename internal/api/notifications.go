package api

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ControlWatcher handles out-of-band flow control via a control
// directory. A `signals/cancel` file requests cancellation of the
// running flow; a `decisions.md` file carries durable guidance that is
// injected into every agent prompt.
type ControlWatcher struct {
	controlDir string

	mu     sync.RWMutex
	cancel bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewControlWatcher creates a control watcher rooted at the given
// directory, creating it as needed.
func NewControlWatcher(controlDir string) (*ControlWatcher, error) {
	signalsDir := filepath.Join(controlDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	// Initialize decisions file if it doesn't exist
	decisionsPath := filepath.Join(controlDir, "decisions.md")
	if _, err := os.Stat(decisionsPath); os.IsNotExist(err) {
		initial := `# Flow Decisions

Durable guidance for agents working in this flow. The contents of this
file are injected into every agent prompt.
`
		if err := os.WriteFile(decisionsPath, []byte(initial), 0644); err != nil {
			return nil, err
		}
	}

	cw := &ControlWatcher{
		controlDir: controlDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - CancelRequested falls back to stat
		return cw, nil
	}
	cw.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		cw.watcher = nil
		return cw, nil
	}

	go cw.watchSignals()

	return cw, nil
}

// watchSignals monitors the signals directory for the cancel file.
func (cw *ControlWatcher) watchSignals() {
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == "cancel" &&
				(event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				cw.mu.Lock()
				cw.cancel = true
				cw.mu.Unlock()
			}
		case <-cw.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// CancelRequested returns true once a cancel signal has been received.
func (cw *ControlWatcher) CancelRequested() bool {
	// Also check the file directly in case the watcher missed it
	cancelPath := filepath.Join(cw.controlDir, "signals", "cancel")
	if _, err := os.Stat(cancelPath); err == nil {
		cw.mu.Lock()
		cw.cancel = true
		cw.mu.Unlock()
	}

	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.cancel
}

// RequestCancel creates the cancel signal file.
func (cw *ControlWatcher) RequestCancel() error {
	path := filepath.Join(cw.controlDir, "signals", "cancel")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (cw *ControlWatcher) ClearSignals() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.cancel = false
	os.Remove(filepath.Join(cw.controlDir, "signals", "cancel"))
}

// ReadDecisions returns the current contents of the decisions file.
func (cw *ControlWatcher) ReadDecisions() string {
	content, err := os.ReadFile(filepath.Join(cw.controlDir, "decisions.md"))
	if err != nil {
		return ""
	}
	return string(content)
}

// AppendDecision adds a new decision to the decisions file.
func (cw *ControlWatcher) AppendDecision(decision string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	path := filepath.Join(cw.controlDir, "decisions.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04")
	_, err = f.WriteString("\n- " + timestamp + ": " + decision + "\n")
	return err
}

// Dir returns the control directory path.
func (cw *ControlWatcher) Dir() string {
	return cw.controlDir
}

// Close shuts down the control watcher.
func (cw *ControlWatcher) Close() {
	close(cw.done)
	if cw.watcher != nil {
		cw.watcher.Close()
	}
}
