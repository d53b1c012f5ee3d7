package tarshard

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Loader runs a Dataset epoch on several workers at once. Each worker
// iterates its own split of the shards with its own shuffle buffer;
// samples from all workers are delivered to a single consumer.
type Loader struct {
	dataset    *Dataset
	numWorkers int
}

// NewLoader returns a Loader running numWorkers workers. With numWorkers
// of 0 or less the epoch runs on the consumer's goroutine, with the
// dataset's own WorkerInfoFunc.
func NewLoader(dataset *Dataset, numWorkers int) *Loader {
	return &Loader{
		dataset:    dataset,
		numWorkers: numWorkers,
	}
}

// Run runs one epoch, calling fn for every sample on the calling
// goroutine. Samples from different workers interleave in no particular
// order. The first error from a worker or from fn stops every worker and
// is returned.
func (l *Loader) Run(ctx context.Context, fn func(Sample) error) error {
	if l.numWorkers <= 0 {
		return l.dataset.ForEach(ctx, fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	epoch := l.dataset.nextEpoch()
	g, gctx := errgroup.WithContext(ctx)
	samples := make(chan Sample, l.numWorkers)
	for id := 0; id < l.numWorkers; id++ {
		worker := &WorkerInfo{ID: id, NumWorkers: l.numWorkers}
		g.Go(func() error {
			return l.runWorker(gctx, epoch, worker, samples)
		})
	}

	errc := make(chan error, 1)
	go func() {
		errc <- g.Wait()
		close(samples)
	}()

	var consumeErr error
	for sample := range samples {
		if consumeErr != nil {
			continue
		}
		if err := fn(sample); err != nil {
			consumeErr = err
			cancel()
		}
	}
	workerErr := <-errc
	if consumeErr != nil {
		return consumeErr
	}
	return workerErr
}

func (l *Loader) runWorker(ctx context.Context, epoch int64, worker *WorkerInfo, out chan<- Sample) error {
	it, err := l.dataset.iter(ctx, epoch, worker)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		sample, err := it.Read(ctx)
		if err == EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
