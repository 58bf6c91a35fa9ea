package renderer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ModelWatcher reloads a model file when it changes on disk and hands the
// new Model to the callback.
type ModelWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Model)
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewModelWatcher watches the directory holding path, since editors often
// replace files instead of writing them in place.
func NewModelWatcher(path string, onReload func(*Model), logger zerolog.Logger) (*ModelWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	mw := &ModelWatcher{
		watcher:  watcher,
		path:     abs,
		onReload: onReload,
		logger:   logger.With().Str("component", "model_watcher").Logger(),
		done:     make(chan struct{}),
	}

	mw.wg.Add(1)
	go mw.watchLoop()

	return mw, nil
}

func (mw *ModelWatcher) Path() string {
	return mw.path
}

func (mw *ModelWatcher) watchLoop() {
	defer mw.wg.Done()
	for {
		select {
		case <-mw.done:
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != mw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				mw.reload()
			}
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Warn().Err(err).Msg("Model watcher error")
		}
	}
}

func (mw *ModelWatcher) reload() {
	model, err := LoadModel(mw.path)
	if errors.Is(err, ErrNoMorphTargets) {
		mw.logger.Warn().Str("path", mw.path).Msg("Reloaded model has no morph targets")
	} else if err != nil {
		// Partial writes fail to parse; the next event retries.
		mw.logger.Debug().Err(err).Str("path", mw.path).Msg("Model reload skipped")
		return
	}
	mw.logger.Info().
		Str("path", mw.path).
		Int("meshes", len(model.Meshes())).
		Int("targets", model.MorphTargetCount()).
		Msg("Model reloaded")
	if mw.onReload != nil {
		mw.onReload(model)
	}
}

// Close stops the watcher. It is safe to call more than once.
func (mw *ModelWatcher) Close() error {
	mw.mu.Lock()
	if mw.closed {
		mw.mu.Unlock()
		return nil
	}
	mw.closed = true
	close(mw.done)
	mw.mu.Unlock()

	err := mw.watcher.Close()
	mw.wg.Wait()
	return err
}
