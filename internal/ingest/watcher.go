package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher imports CSV files dropped into a directory. Files are imported once
// per modification time, so a re-dropped file with fresh content is picked up
// while duplicate change events for the same version are not.
type Watcher struct {
	log      zerolog.Logger
	imp      *Importer
	dir      string
	debounce time.Duration
	imported map[string]time.Time
}

type WatcherOptions struct {
	Dir string
	// Debounce delays an import until a file has been quiet for this long,
	// so half-written drops are not read mid-copy.
	Debounce time.Duration
}

func NewWatcher(log zerolog.Logger, imp *Importer, opts WatcherOptions) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		log:      log,
		imp:      imp,
		dir:      opts.Dir,
		debounce: debounce,
		imported: make(map[string]time.Time),
	}
}

// Run watches the drop directory until the context is done. Files already in
// the directory at startup are imported first.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	w.importExisting(ctx)

	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isCSV(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now().Add(w.debounce)
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("csv watcher error")
		case <-timer.C:
			now := time.Now()
			next := time.Duration(0)
			for path, due := range pending {
				if due.After(now) {
					if wait := due.Sub(now); next == 0 || wait < next {
						next = wait
					}
					continue
				}
				delete(pending, path)
				w.importFile(ctx, path)
			}
			if len(pending) > 0 {
				timer.Reset(next)
			}
		}
	}
}

func (w *Watcher) importExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("csv drop directory unreadable")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCSV(entry.Name()) {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("csv drop vanished before import")
		return
	}
	if last, ok := w.imported[path]; ok && !info.ModTime().After(last) {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("csv drop unreadable")
		return
	}
	defer f.Close()

	res, err := w.imp.ImportReader(ctx, f, "csv")
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("csv import failed")
		return
	}

	w.imported[path] = info.ModTime()
	w.log.Info().
		Str("path", path).
		Int("rows", res.Rows).
		Int("inserted", res.Inserted).
		Msg("csv drop imported")
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
