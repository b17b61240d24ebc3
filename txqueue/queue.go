// The transaction serialization queue.
//
// Every destination-chain write from this process goes through one of
// these. The signing account has a single pending-nonce counter; two
// concurrent submissions would both read the same nonce and the second
// would be rejected as an underpriced replacement. The queue runs
// operations strictly one at a time, in submission order, from a single
// worker goroutine.
package txqueue

import (
	"context"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/metrics"
)

// Op is one outgoing chain write. It may internally wait for the tx to be
// mined; the queue does not move on until it returns.
type Op func() (ethcommon.Hash, error)

type Result struct {
	TxHash ethcommon.Hash
	Err    error
}

type job struct {
	label string
	op    Op
	res   chan Result
}

type Queue struct {
	jobs chan job
}

// New builds a queue with the given submission buffer. Submit blocks once
// the buffer is full, which is the only backpressure this process needs.
func New(buffer int) *Queue {
	return &Queue{
		jobs: make(chan job, buffer),
	}
}

// Start runs the worker loop until ctx is cancelled. Pending jobs at
// cancellation time are resolved with ctx.Err() rather than left hanging.
func (q *Queue) Start(ctx context.Context) error {
	logger.Info("starting tx serialization queue")
	defer logger.Info("stopping tx serialization queue")

	for {
		// cancellation wins over a ready job, so nothing sneaks in after
		// the current op finishes
		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return ctx.Err()
		case j := <-q.jobs:
			metrics.QueueDepth.Dec()
			j.res <- q.run(j)
		}
	}
}

// Submit enqueues op and returns a channel that resolves once the op has
// run. A failing op resolves its own caller only; it never blocks or
// poisons the queue. The queue retries nothing; retry policy belongs to
// the caller.
func (q *Queue) Submit(label string, op Op) <-chan Result {
	res := make(chan Result, 1)
	metrics.QueueSubmissions.Inc()
	metrics.QueueDepth.Inc()
	q.jobs <- job{label: label, op: op, res: res}
	return res
}

func (q *Queue) run(j job) (res Result) {
	defer func() {
		// a panicking op must not take the worker down with it
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{
				"op":    j.label,
				"panic": r,
			}).Error("queued operation panicked")
			res = Result{Err: fmt.Errorf("operation %s panicked: %v", j.label, r)}
		}
	}()

	txHash, err := j.op()
	if err != nil {
		logger.WithFields(logger.Fields{
			"op":  j.label,
			"err": err,
		}).Error("queued operation failed")
		return Result{Err: err}
	}

	logger.WithFields(logger.Fields{
		"op": j.label,
		"tx": txHash.Hex(),
	}).Debug("queued operation done")
	return Result{TxHash: txHash}
}

func (q *Queue) drain(err error) {
	for {
		select {
		case j := <-q.jobs:
			metrics.QueueDepth.Dec()
			j.res <- Result{Err: err}
		default:
			return
		}
	}
}
