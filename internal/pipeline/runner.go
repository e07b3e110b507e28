package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/eluv-io/errors-go"
	"golang.org/x/sync/errgroup"

	"github.com/Eyevinn/mp2ts-klv/common"
	"github.com/Eyevinn/mp2ts-klv/internal/mpegts"
)

// DefaultChunkSize is the read size used by the Runner.
const DefaultChunkSize = 1000 * common.PacketSize

// Source is one input stream. When Reader is also an io.Closer it is closed
// on cancellation to unblock pending reads.
type Source struct {
	Name   string
	Reader io.Reader
}

// LossReporter is implemented by sources that detect lost datagrams below the
// transport stream layer, such as RTP sequence gaps.
type LossReporter interface {
	Lost() uint64
}

// Sink receives decoded units. The Runner never calls it concurrently.
type Sink func(stream string, u *Unit) error

// StreamResult is the outcome of one stream. Err holds a stream level
// failure such as ErrStalled or a read error; it does not stop other streams.
type StreamResult struct {
	Name  string
	Stats *StreamStatistics
	Err   error
}

// Runner runs one pipeline per source concurrently. Pipelines share no
// state; only the sink is serialized.
type Runner struct {
	Config    Config
	ChunkSize int
}

// Run processes all sources until they end or ctx is cancelled. The returned
// error is a sink failure, which cancels all streams.
func (r *Runner) Run(ctx context.Context, sources []Source, sink Sink) ([]StreamResult, error) {
	results := make([]StreamResult, len(sources))
	var mu sync.Mutex
	serialized := func(stream string, u *Unit) error {
		mu.Lock()
		defer mu.Unlock()
		return sink(stream, u)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := r.runStream(ctx, src, serialized)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return results, err
}

func (r *Runner) runStream(ctx context.Context, src Source, sink Sink) (StreamResult, error) {
	e := errors.Template("pipeline.Run", errors.K.IO, "stream", src.Name)
	p := New(r.Config)
	p.Stats().Stream = src.Name
	res := StreamResult{Name: src.Name, Stats: p.Stats()}

	stop := closeOnDone(ctx, src.Reader)
	defer stop()

	emit := func(units []*Unit) error {
		for _, u := range units {
			if err := sink(src.Name, u); err != nil {
				return e(err)
			}
		}
		return nil
	}
	// finish closes the pipeline. After a sink failure the remaining units
	// are dropped but the statistics are still completed.
	finish := func(sinkErr error) (StreamResult, error) {
		units := p.Close()
		if sinkErr == nil {
			sinkErr = emit(units)
		}
		if lr, ok := src.Reader.(LossReporter); ok {
			res.Stats.LostDatagrams = lr.Lost()
		}
		res.Stats.Finalize(common.TimeScale)
		return res, sinkErr
	}

	chunk := r.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, chunk)
	for {
		if ctx.Err() != nil {
			return finish(nil)
		}
		n, rerr := src.Reader.Read(buf)
		if n > 0 {
			units, ferr := p.Feed(buf[:n])
			if err := emit(units); err != nil {
				return finish(err)
			}
			switch ferr {
			case nil:
			case mpegts.ErrResyncFailed:
				log.Warn("no transport packets found", "stream", src.Name,
					"skipped", p.DemuxStats().SkippedBytes.Load())
			case ErrStalled:
				log.Warn("stream stalled", "stream", src.Name, "bytes", p.BytesSinceRecord(),
					"packets", p.DemuxStats().Packets.Load())
				res.Err = ErrStalled
				return finish(nil)
			default:
				res.Err = ferr
				return finish(nil)
			}
		}
		if rerr == io.EOF {
			return finish(nil)
		}
		if rerr != nil {
			if ctx.Err() == nil {
				res.Err = e(rerr)
				log.Warn("read failed", "stream", src.Name, "error", rerr)
			}
			return finish(nil)
		}
	}
}

// closeOnDone closes rd when ctx is done before the returned stop function
// is called.
func closeOnDone(ctx context.Context, rd io.Reader) (stop func()) {
	c, ok := rd.(io.Closer)
	if !ok {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
