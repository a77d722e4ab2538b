package core

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchDelay groups the burst of events editors produce on save.
const watchDelay = 200 * time.Millisecond

// WatchModel reloads the engine each time the model file changes, until
// c is done. An empty path watches conf.ModelFile.
func (n *NavQL) WatchModel(c context.Context, path string) error {
	s := n.state()

	if path == "" {
		path = s.conf.ModelFile
	}
	if path == "" {
		return errors.New("no model file to watch")
	}

	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}

	// watch the directory, editors replace files on save
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close() //nolint:errcheck
		return errors.Wrapf(err, "watching %s", path)
	}

	go n.watch(c, w, path)
	return nil
}

func (n *NavQL) watch(c context.Context, w *fsnotify.Watcher, path string) {
	defer w.Close() //nolint:errcheck

	var timer <-chan time.Time

	for {
		select {
		case <-c.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer = time.After(watchDelay)

		case <-timer:
			timer = nil
			log := n.state().log
			log.Infow("model file changed, reloading", "file", path)

			if err := n.Reload(); err != nil {
				log.Errorw("reload failed", "file", path, "error", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			n.state().log.Errorw("watcher error", "file", path, "error", err)
		}
	}
}
