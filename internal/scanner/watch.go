package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watch monitors dir and its subdirectories until ctx is done, calling
// onChange once a burst of changes to .py or manifest files has been quiet
// for the debounce interval. Directories created while watching are added.
func (s *Scanner) Watch(ctx context.Context, dir string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.addSubdirs(fw, dir)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer == nil {
			timer = time.AfterFunc(debounce, onChange)
			return
		}
		timer.Reset(debounce)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	s.log.Debug().Str("dir", dir).Msg("watching agents folder")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(ev.Name)) {
						if err := fw.Add(ev.Name); err != nil {
							s.log.Debug().Err(err).Str("dir", ev.Name).Msg("watch add failed")
						}
						s.addSubdirs(fw, ev.Name)
						schedule()
					}
					continue
				}
			}
			if relevantChange(ev) {
				s.log.Trace().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("agents folder changed")
				schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// addSubdirs registers every non-skipped directory below root.
func (s *Scanner) addSubdirs(fw *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		if skipDir(d.Name()) {
			return fs.SkipDir
		}
		if err := fw.Add(path); err != nil {
			s.log.Debug().Err(err).Str("dir", path).Msg("watch add failed")
		}
		return nil
	})
}

func relevantChange(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	name := ev.Name
	if strings.HasSuffix(name, ".py") || strings.HasSuffix(name, ".manifest.json") {
		return true
	}
	// A removed or renamed directory takes its agents with it.
	return (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) && filepath.Ext(name) == ""
}
