package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/hive/pkg/agent"
	"github.com/rs/zerolog"
)

const defaultStabilityThreshold = 100 * time.Millisecond

// Live serves the most recently loaded catalog from a file. A reload builds a
// fresh Catalog and swaps it in; agents handed out before the swap keep
// working unchanged, so runs in flight finish on the agents they started
// with.
type Live struct {
	path    string
	opts    Options
	current atomic.Pointer[Catalog]
	logger  zerolog.Logger

	// OnReload, when set, observes every reload attempt
	OnReload func(c *Catalog, err error)

	stabilityThreshold time.Duration
	watcher            *fsnotify.Watcher
	done               chan struct{}
	stopOnce           sync.Once
	debounceMu         sync.Mutex
	debounce           *time.Timer
}

// NewLive wraps an already loaded catalog. path and opts are used for
// reloads.
func NewLive(initial *Catalog, path string, opts Options) *Live {
	l := &Live{
		path:               filepath.Clean(path),
		opts:               opts,
		logger:             opts.Logger,
		stabilityThreshold: defaultStabilityThreshold,
		done:               make(chan struct{}),
	}
	l.current.Store(initial)
	return l
}

// Current returns the catalog in effect
func (l *Live) Current() *Catalog {
	return l.current.Load()
}

// Reload rebuilds the catalog from its file. On failure the current catalog
// stays in effect.
func (l *Live) Reload() error {
	c, err := Load(l.path, l.opts)
	if err == nil {
		l.current.Store(c)
		l.logger.Info().
			Str("path", l.path).
			Str("catalog", c.Name()).
			Strs("agents", c.Names()).
			Msg("Agent catalog reloaded")
	} else {
		l.logger.Error().Err(err).Str("path", l.path).Msg("Failed to reload agent catalog, keeping the previous one")
	}

	if l.OnReload != nil {
		l.OnReload(c, err)
	}
	return err
}

// Watch reloads the catalog whenever its file changes. The directory is
// watched so editors that replace the file on save are picked up.
func (l *Live) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", l.path, err)
	}
	l.watcher = watcher

	go l.eventLoop()

	l.logger.Info().Str("path", l.path).Msg("Catalog watcher started")
	return nil
}

// Close stops watching. It is safe to call without Watch.
func (l *Live) Close() error {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.debounceMu.Lock()
	if l.debounce != nil {
		l.debounce.Stop()
		l.debounce = nil
	}
	l.debounceMu.Unlock()

	if l.watcher == nil {
		return nil
	}
	if err := l.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (l *Live) eventLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// the replacement arrives as a Create
				continue
			}
			l.scheduleReload()

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Catalog watcher error")

		case <-l.done:
			return
		}
	}
}

// scheduleReload collapses a burst of writes into one reload
func (l *Live) scheduleReload() {
	l.debounceMu.Lock()
	defer l.debounceMu.Unlock()

	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.debounce = time.AfterFunc(l.stabilityThreshold, func() {
		select {
		case <-l.done:
			return
		default:
			_ = l.Reload()
		}
	})
}

// Name returns the current catalog name
func (l *Live) Name() string {
	return l.Current().Name()
}

// Entry returns the current starting agent
func (l *Live) Entry() *agent.Agent {
	return l.Current().Entry()
}

// Agent returns the named agent of the current catalog
func (l *Live) Agent(name string) (*agent.Agent, bool) {
	return l.Current().Agent(name)
}

// Names lists the current catalog's agents
func (l *Live) Names() []string {
	return l.Current().Names()
}

// Describe returns the named agent's description in the current catalog
func (l *Live) Describe(name string) string {
	return l.Current().Describe(name)
}
