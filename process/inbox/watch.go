package inbox

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gastos/pkg/logger"
)

const (
	debounceTick  = 250 * time.Millisecond
	debounceQuiet = 300 * time.Millisecond
)

// watch feeds names of new files into out until ctx is done. A file is
// emitted once it has not been written to for debounceQuiet.
func (in *Inbox) watch(ctx context.Context, out chan<- string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(in.Dir); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("dir", in.Dir).Msg("watching inbox")

	raw := make(chan string, 256)
	go func() {
		defer close(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !isSupportedExt(name) {
					continue
				}
				select {
				case raw <- name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	debounce(ctx, raw, out, debounceTick, debounceQuiet)
	return nil
}

// debounce forwards each name from in to out after it has been quiet for
// quiet. Repeated names reset their timer. When in closes, names still
// waiting are flushed.
func debounce(ctx context.Context, in <-chan string, out chan<- string, tick, quiet time.Duration) {
	waiting := map[string]time.Time{}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	emit := func(name string) bool {
		select {
		case out <- name:
			delete(waiting, name)
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-in:
			if !ok {
				for n := range waiting {
					if !emit(n) {
						return
					}
				}
				return
			}
			waiting[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range waiting {
				if now.Sub(t) > quiet {
					if !emit(name) {
						return
					}
				}
			}
		}
	}
}
