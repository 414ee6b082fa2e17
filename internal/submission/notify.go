// File: internal/submission/notify.go
package submission

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Notifier tells a waiting reader when it is worth reading again. Signals are
// hints: a reader must still call Read and tolerate finding nothing.
type Notifier interface {
	// Subscribe returns a signal channel for sessionID and a cancel function
	// that must be called once the caller stops listening.
	Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func())
}

// TickerNotifier signals at a fixed interval, which turns any Channel into a
// polled one.
type TickerNotifier struct {
	Interval time.Duration
}

// NewTickerNotifier returns a notifier firing every interval.
func NewTickerNotifier(interval time.Duration) *TickerNotifier {
	return &TickerNotifier{Interval: interval}
}

func (t *TickerNotifier) Subscribe(ctx context.Context, _ string) (<-chan struct{}, func()) {
	return tick(ctx, t.Interval)
}

// tick forwards ticker fires into a buffered channel until cancelled.
func tick(ctx context.Context, interval time.Duration) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, func() {
		cancel()
		<-done
	}
}

// WatchNotifier watches a cache directory with fsnotify and signals the
// subscriber whose artifact was renamed into place. A ticker runs alongside
// the watcher so a missed or coalesced event only delays, never loses, a
// submission.
type WatchNotifier struct {
	watcher  *fsnotify.Watcher
	fallback time.Duration
	log      *zap.Logger

	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatchNotifier starts watching dir.
func NewWatchNotifier(dir string, fallback time.Duration, logger *zap.Logger) (*WatchNotifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	n := &WatchNotifier{
		watcher:  w,
		fallback: fallback,
		log:      logger.Named("watch_notifier"),
		subs:     make(map[string]map[chan struct{}]struct{}),
		done:     make(chan struct{}),
	}
	go n.loop()
	return n, nil
}

func (n *WatchNotifier) loop() {
	defer close(n.done)
	for {
		select {
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if id, ok := SessionFromArtifact(ev.Name); ok {
				n.signal(id)
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.log.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (n *WatchNotifier) signal(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *WatchNotifier) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)

	n.mu.Lock()
	set, ok := n.subs[sessionID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.subs[sessionID] = set
	}
	set[out] = struct{}{}
	n.mu.Unlock()

	ticks, stopTicks := tick(ctx, n.fallback)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			<-done
			stopTicks()
			n.mu.Lock()
			delete(n.subs[sessionID], out)
			if len(n.subs[sessionID]) == 0 {
				delete(n.subs, sessionID)
			}
			n.mu.Unlock()
		})
	}
}

// Close stops the watcher and waits for its goroutine.
func (n *WatchNotifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		err = n.watcher.Close()
		<-n.done
	})
	return err
}

type mergedNotifier []Notifier

// Merge fans several notifiers into one. A signal from any of them wakes the
// subscriber.
func Merge(notifiers ...Notifier) Notifier {
	return mergedNotifier(notifiers)
}

func (m mergedNotifier) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	cancels := make([]func(), 0, len(m))

	for _, n := range m {
		sig, stop := n.Subscribe(ctx, sessionID)
		cancels = append(cancels, stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-sig:
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			for _, stop := range cancels {
				stop()
			}
		})
	}
}
