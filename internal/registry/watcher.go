package registry

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long the watcher waits after a write burst before
// reloading, since editors often emit several events per save.
const debounce = 200 * time.Millisecond

// CatalogWatcher reloads the worker catalog when its file changes, giving
// runtime add/remove of workers without a restart.
type CatalogWatcher struct {
	path    string
	reg     *WorkerRegistry
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchWorkerCatalog starts watching the catalog file at path, applying it
// to the registry on every change. The initial catalog must already have
// been applied by the caller.
func WatchWorkerCatalog(path string, reg *WorkerRegistry) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: renames during atomic
	// saves would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	cw := &CatalogWatcher{
		path:    path,
		reg:     reg,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

func (cw *CatalogWatcher) loop() {
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounce)

		case <-pending:
			pending = nil
			cw.reload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[registry] catalog watcher error: %v", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *CatalogWatcher) reload() {
	catalog, err := LoadWorkerCatalog(cw.path)
	if err != nil {
		// Keep the last good catalog on parse errors.
		log.Printf("[registry] catalog reload failed, keeping previous: %v", err)
		return
	}
	ApplyWorkerCatalog(cw.reg, catalog)
	log.Printf("[registry] worker catalog reloaded: %d workers", cw.reg.Count())
}

// Close stops the watcher.
func (cw *CatalogWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
