// Package janitor runs the periodic storage sweeps owned by the process.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one sweep. Run reports how many records it removed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func() (int, error)
}

// Start runs every task once straight away and then on its interval until ctx is
// cancelled or the returned stop function is called. stop waits for in-flight sweeps.
func Start(ctx context.Context, logger zerolog.Logger, tasks ...Task) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for _, task := range tasks {
		if task.Run == nil || task.Interval <= 0 {
			logger.Warn().Str("task", task.Name).Dur("interval", task.Interval).Msg("janitor task skipped")
			continue
		}

		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			sweep(logger, task)

			ticker := time.NewTicker(task.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sweep(logger, task)
				}
			}
		}(task)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func sweep(logger zerolog.Logger, task Task) {
	removed, err := task.Run()
	if err != nil {
		logger.Error().Err(err).Str("task", task.Name).Msg("janitor sweep failed")
		return
	}
	if removed > 0 {
		logger.Debug().Str("task", task.Name).Int("removed", removed).Msg("janitor sweep")
	}
}
