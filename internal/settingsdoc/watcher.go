package settingsdoc

import (
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/launix-de/notebookd/internal/scheduler"
)

// DebounceWindow is the file-watcher debounce window named in
// spec.md §4.E / §5 ("a debounced file-system watcher (debounce
// window ~500 ms)").
const DebounceWindow = 500 * time.Millisecond

// WatchJSON watches jsonPath for external edits (fsnotify, exactly
// as the teacher's settings infrastructure would, though the teacher
// itself has no watcher — this is grounded on fsnotify's own
// recommended debounced-reload pattern). On a settled change it reads
// the file and applies it with ApplyJSONChanges; onChanged is invoked
// only when something actually changed, so callers can broadcast an
// event and reset pool backoff state as spec.md requires. The
// returned stop function tears down the watcher and its debounce
// timer.
func (d *Doc) WatchJSON(jsonPath string, sched *scheduler.Scheduler, onChanged func()) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(jsonPath); err != nil {
		watcher.Close()
		return nil, err
	}

	var debounceID uint64
	var hasDebounce bool
	reload := func() {
		raw, err := os.ReadFile(jsonPath)
		if err != nil {
			log.Printf("settingsdoc: watcher read %s failed: %v", jsonPath, err)
			return
		}
		changed, err := d.ApplyJSONChanges(raw)
		if err != nil {
			log.Printf("settingsdoc: watcher apply %s failed: %v", jsonPath, err)
			return
		}
		if changed && onChanged != nil {
			onChanged()
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if hasDebounce {
					sched.Clear(debounceID)
				}
				debounceID, hasDebounce = sched.ScheduleAfter(DebounceWindow, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("settingsdoc: watcher error: %v", err)
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
		if hasDebounce {
			sched.Clear(debounceID)
		}
	}, nil
}
