// File: internal/submission/open.go
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/formbridge/internal/config"
	"go.uber.org/zap"
)

// Backend bundles the configured channel with the notifier best suited to it.
type Backend struct {
	Channel  Channel
	Notifier Notifier
	closers  []func() error
}

// Close releases every resource the backend opened.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the channel selected by submission.backend.
//
// memory and file backends notify in-process writes immediately; the file
// backend also polls (or watches, with bridge.watch) for artifacts written by
// another process. redis and postgres rely on polling alone.
func Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Backend, error) {
	sub := cfg.Submission()
	interval := cfg.Bridge().PollInterval

	switch sub.Backend {
	case config.BackendMemory:
		mem := NewMemoryChannel()
		return &Backend{Channel: mem, Notifier: mem}, nil

	case config.BackendFile:
		fc, err := NewFileChannel(cfg.Form().CacheDir, logger)
		if err != nil {
			return nil, err
		}
		b := &Backend{Channel: fc}
		if cfg.Bridge().Watch {
			w, err := NewWatchNotifier(fc.Dir(), interval, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to watch cache directory: %w", err)
			}
			b.Notifier = Merge(fc.Memory(), w)
			b.closers = append(b.closers, w.Close)
		} else {
			b.Notifier = Merge(fc.Memory(), NewTickerNotifier(interval))
		}
		return b, nil

	case config.BackendRedis:
		rc, err := NewRedisChannel(ctx, sub.RedisURL, sub.TTL, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Channel: rc, Notifier: NewTickerNotifier(interval), closers: []func() error{rc.Close}}, nil

	case config.BackendPostgres:
		pc, closePool, err := OpenPostgres(ctx, sub.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Channel:  pc,
			Notifier: NewTickerNotifier(interval),
			closers:  []func() error{func() error { closePool(); return nil }},
		}, nil

	default:
		return nil, fmt.Errorf("unknown submission backend %q", sub.Backend)
	}
}
