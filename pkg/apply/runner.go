package apply

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

// Request is one queued apply invocation, correlated by its job id.
type Request struct {
	JobId     string
	MappingId string
}

// Runner serializes apply requests so two runs never interleave their
// rewrites. Requests queue behind the running one and are processed in
// order; a request whose set got deactivated while queued fails with
// ErrMappingNoLongerActive when its turn comes.
type Runner struct {
	applier *Applier
	queue   chan Request
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRunner(applier *Applier, queueSize int) *Runner {
	if queueSize <= 0 {
		queueSize = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		applier: applier,
		queue:   make(chan Request, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

var ErrQueueFull = errors.New("apply queue is full")

// Enqueue schedules an apply run and returns its job id.
func (r *Runner) Enqueue(mappingId string) (string, error) {
	request := Request{JobId: uuid.NewString(), MappingId: mappingId}
	select {
	case r.queue <- request:
		return request.JobId, nil
	default:
		return "", ErrQueueFull
	}
}

func (r *Runner) drain() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case request := <-r.queue:
			result, err := r.applier.Apply(r.ctx, request.MappingId, request.JobId)
			if err != nil {
				log.Printf("apply %s for set %s aborted after %d documents: %v",
					request.JobId, request.MappingId, result.Rewritten, err)
			}
		}
	}
}

// Close stops the runner; a run in flight stops at its next batch
// boundary and reports a partial result.
func (r *Runner) Close() {
	r.cancel()
	<-r.done
}
