package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
	"github.com/Skryldev/audioedit/pkg/logger"
)

// WorkerPool fans per-channel work out to background goroutines. With one
// worker or fewer everything runs on the calling goroutine.
type WorkerPool struct {
	workers int
	log     *logger.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, log *logger.Logger) *WorkerPool {
	if workers < 0 {
		workers = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{
		workers: workers,
		log:     log,
	}
}

// Workers returns the configured background worker count
func (wp *WorkerPool) Workers() int { return wp.workers }

// MapChannels applies p to every channel of buf and returns a new buffer
func (wp *WorkerPool) MapChannels(ctx context.Context, buf *model.Buffer, p dsp.Processor) (*model.Buffer, error) {
	out := &model.Buffer{SampleRate: buf.SampleRate, Channels: make([][]float64, len(buf.Channels))}

	if wp.workers <= 1 || len(buf.Channels) <= 1 {
		for i, ch := range buf.Channels {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out.Channels[i] = p.Process(ch)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wp.workers)
	for i, ch := range buf.Channels {
		i, ch := i, ch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Channels[i] = p.Process(ch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		wp.log.Debug("channel fan-out aborted", zap.Error(err))
		return nil, err
	}
	return out, nil
}
