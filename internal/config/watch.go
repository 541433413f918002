package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the snapshot file and invokes onChange with the freshly
// reloaded snapshot whenever it is written. Editors often replace files via
// rename, so the watch is on the parent directory with events filtered to
// the config path. Events are debounced so a save producing several writes
// triggers one reload.
//
// Watch blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, onChange func(Snapshot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			onChange(l.Reload())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("config watch error", "error", err)
		}
	}
}
