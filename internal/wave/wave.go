// Package wave schedules ordered task lists in fixed-size waves.
//
// A wave is a bounded batch of tasks submitted together and fully awaited
// before the next batch is submitted. The wave size bounds how many tasks
// are in play (submitted but possibly incomplete) at once, independent of
// the pool's worker count, and with it the peak memory held by materialized
// task payloads.
package wave

import (
	"context"
	"fmt"
	"time"

	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/metrics"
	"github.com/epigenlab/trackstore/internal/pool"
)

// Task is a named unit of work for one wave slot.
type Task struct {
	Name string
	Run  pool.Task
}

// Run partitions tasks into waves of at most waveSize and submits one wave
// at a time to the pool, blocking until every task in the wave reaches a
// terminal state before advancing.
//
// The first failure within a wave is recorded, the remainder of that wave is
// still fully drained (no orphaned futures), and the failure is returned
// without submitting any task from a later wave. Cancellation of ctx between
// waves is reported the same way; it never interrupts a wave mid-drain.
func Run(ctx context.Context, level string, tasks []Task, waveSize int, p *pool.Pool) error {
	if waveSize < 1 {
		waveSize = 1
	}
	log := logging.Component("wave").With("level", level)

	for offset := 0; offset < len(tasks); offset += waveSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := offset + waveSize
		if end > len(tasks) {
			end = len(tasks)
		}
		current := tasks[offset:end]
		start := time.Now()

		log.Debug("submitting wave", "offset", offset, "size", len(current), "total", len(tasks))

		var firstErr error
		futures := make([]*pool.Future, 0, len(current))
		names := make([]string, 0, len(current))

		for _, t := range current {
			fut, err := p.Submit(t.Run)
			if err != nil {
				// Pool refused the task; remember the failure but keep
				// draining what was already submitted.
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: submit: %w", t.Name, err)
				}
				break
			}
			futures = append(futures, fut)
			names = append(names, t.Name)
		}

		// Wave barrier: every submitted task reaches a terminal state here,
		// success or failure, before the scheduler moves on. A task failure
		// never breaks the barrier early; an external interrupt does, because
		// the caller's cascade cancellation resolves the remaining futures.
		for i, fut := range futures {
			select {
			case <-fut.Done():
				if err := fut.Wait(); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", names[i], err)
				}
			case <-ctx.Done():
				log.Warn("interrupted mid-wave", "offset", offset)
				return ctx.Err()
			}
		}

		if m := metrics.Get(); m != nil {
			m.WaveDuration.WithLabelValues(level).Observe(time.Since(start).Seconds())
		}

		if firstErr != nil {
			log.Error("wave failed", "offset", offset, "error", firstErr)
			return firstErr
		}
	}

	return nil
}
