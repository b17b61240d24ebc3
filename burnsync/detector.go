// Package burnsync watches the source chain's message transmitter for
// burn messages addressed to this deployment and optimistically mints a
// claim on the destination escrow for each novel one. It never mutates
// the receivable projection directly; the destination watcher picks the
// mint up from its own logs. The durable known-hash set is what keeps a
// burn from ever being minted twice, no matter how often backfill or the
// overlap margin re-delivers its log.
package burnsync

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/cctp"
	"github.com/meantime-io/receivables-go/common"
	"github.com/meantime-io/receivables-go/metrics"
	"github.com/meantime-io/receivables-go/state"
	"github.com/meantime-io/receivables-go/txqueue"
)

// DefaultMintTimeout bounds one mint submission including the wait for
// its receipt.
const DefaultMintTimeout = 3 * time.Minute

// LogSource is the slice of the source-chain client the detector needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, address ethcommon.Address, topics [][]ethcommon.Hash) ([]types.Log, error)
}

// Writer submits the destination-chain mint.
type Writer interface {
	MintReceivable(ctx context.Context, messageHash ethcommon.Hash, owner, asset ethcommon.Address, amount *big.Int) (ethcommon.Hash, error)
}

// Starter hands a confirmed mint over to the settlement subsystem.
type Starter interface {
	StartPolling(msg *cctp.Message)
}

type Detector struct {
	cfg             *Config
	source          LogSource
	transmitterAddr ethcommon.Address
	escrowAddr      ethcommon.Address
	store           *state.Store
	queue           *txqueue.Queue
	writer          Writer
	starter         Starter

	lastProcessed uint64
	firstLiveTick bool

	// retry state, shared between the tick loop and the mint-failure
	// handler
	mu           sync.Mutex
	retryPending bool
	retryFloor   uint64

	stopOnce sync.Once
	stopped  atomic.Bool
	stopCh   chan struct{}

	wg sync.WaitGroup
}

func New(source LogSource, transmitterAddr, escrowAddr ethcommon.Address, store *state.Store,
	queue *txqueue.Queue, writer Writer, starter Starter, cfg *Config) *Detector {
	return &Detector{
		cfg:             cfg.withDefaults(),
		source:          source,
		transmitterAddr: transmitterAddr,
		escrowAddr:      escrowAddr,
		store:           store,
		queue:           queue,
		writer:          writer,
		starter:         starter,
		firstLiveTick:   true,
		stopCh:          make(chan struct{}),
	}
}

// Backfill scans historical transmitter logs for burns this deployment
// missed while offline. Already-known hashes are skipped, so replaying
// the same window twice is harmless.
func (d *Detector) Backfill(ctx context.Context) error {
	latest, err := d.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	from := uint64(0)
	if latest > d.cfg.LookbackBlocks {
		from = latest - d.cfg.LookbackBlocks
	}

	discovered := 0
	if from <= latest {
		for start := from; start <= latest; start += d.cfg.ChunkSize {
			end := start + d.cfg.ChunkSize - 1
			if end > latest {
				end = latest
			}

			logs, err := d.source.FilterLogs(ctx, start, end, d.transmitterAddr, [][]ethcommon.Hash{{MessageSentSignatureHash}})
			if err != nil {
				metrics.BackfillChunkErrors.Inc()
				logger.WithFields(logger.Fields{
					"from": start,
					"to":   end,
					"err":  err,
				}).Error("burn backfill chunk failed, skipped")
				continue
			}
			discovered += d.handleLogs(logs)
		}
	}

	d.advance(latest)

	logger.WithFields(logger.Fields{
		"from":  from,
		"to":    latest,
		"burns": discovered,
	}).Info("burn backfill complete")
	return nil
}

// Watch polls for new transmitter logs until ctx is cancelled or Stop is
// called. Tick failures are logged and swallowed.
func (d *Detector) Watch(ctx context.Context) error {
	logger.Info("starting burn watch")
	defer logger.Info("stopping burn watch")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case <-ticker.C:
			if d.stopped.Load() {
				return nil
			}
			if err := d.tick(ctx); err != nil {
				logger.Errorf("burn watch tick failed: %v", err)
			}
		}
	}
}

// Stop is idempotent and keeps any further tick from touching the chain.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stopCh)
	})
}

// Wait blocks until every in-flight mint handoff has finished. Used by
// tests and shutdown.
func (d *Detector) Wait() {
	d.wg.Wait()
}

func (d *Detector) tick(ctx context.Context) error {
	latest, err := d.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	from := d.lastProcessed + 1
	if d.firstLiveTick {
		if from > d.cfg.OverlapBlocks {
			from -= d.cfg.OverlapBlocks
		} else {
			from = 0
		}
		d.firstLiveTick = false
	}

	// a failed mint released its hash; re-scan from its block so the
	// burn is retried without waiting for a restart
	d.mu.Lock()
	retryConsumed := d.retryPending
	retryFloor := d.retryFloor
	if d.retryPending && d.retryFloor < from {
		from = d.retryFloor
	}
	d.retryPending = false
	d.mu.Unlock()

	if latest < from {
		return nil
	}

	for start := from; start <= latest; start += d.cfg.ChunkSize {
		end := start + d.cfg.ChunkSize - 1
		if end > latest {
			end = latest
		}
		logs, err := d.source.FilterLogs(ctx, start, end, d.transmitterAddr, [][]ethcommon.Hash{{MessageSentSignatureHash}})
		if err != nil {
			// the retry window wasn't fully re-scanned; re-arm it
			if retryConsumed {
				d.scheduleRetry(retryFloor)
			}
			return err
		}
		d.handleLogs(logs)
	}

	d.advance(latest)
	return nil
}

// handleLogs decodes, filters and mints. Returns how many novel burns
// were handed to the queue.
func (d *Detector) handleLogs(logs []types.Log) int {
	novel := 0
	for _, vlog := range logs {
		raw, err := DecodeMessageSent(vlog)
		if err != nil {
			logger.Warnf("undecodable MessageSent log in block %d: %v", vlog.BlockNumber, err)
			continue
		}

		msg, err := cctp.ParseMessage(raw)
		if err != nil {
			logger.Warnf("unparseable burn message in block %d: %v", vlog.BlockNumber, err)
			continue
		}

		if !msg.RelevantTo(d.cfg.Domain, d.escrowAddr) {
			continue
		}

		hash := msg.Hash()
		if d.store.IsKnown(hash) {
			continue
		}

		// claim the hash before the mint goes out so a second delivery of
		// the same log, from overlap or a concurrent backfill, is a no-op.
		// the claim is released again if the mint fails.
		d.store.MarkKnown(hash)
		d.mint(msg, vlog.BlockNumber)
		novel++
	}
	return novel
}

// mint submits the destination mint through the serialization queue and
// hands the transfer to settlement once the receipt lands. On failure the
// hash claim is released and a re-scan of the log's block is scheduled,
// so the burn stays mintable; if the tx actually landed despite the
// error, the escrow's uniqueness check rejects the second mint.
func (d *Detector) mint(msg *cctp.Message, blockNumber uint64) {
	hash := msg.Hash()
	metrics.BurnsDiscovered.Inc()

	logger.WithFields(logger.Fields{
		"messageHash": common.NormalizeHash(hash),
		"amount":      msg.Body.Amount.String(),
		"owner":       msg.Body.MessageSender.Hex(),
	}).Info("novel burn discovered, minting receivable")

	res := d.queue.Submit("mint "+common.NormalizeHash(hash), func() (ethcommon.Hash, error) {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultMintTimeout)
		defer cancel()
		return d.writer.MintReceivable(ctx, hash, msg.Body.MessageSender, msg.Body.BurnToken, msg.Body.Amount)
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		r := <-res
		if r.Err != nil {
			d.store.ForgetKnown(hash)
			d.scheduleRetry(blockNumber)
			logger.WithFields(logger.Fields{
				"messageHash": common.NormalizeHash(hash),
				"err":         r.Err,
			}).Error("receivable mint failed, hash released for retry")
			return
		}

		logger.WithFields(logger.Fields{
			"messageHash": common.NormalizeHash(hash),
			"tx":          r.TxHash.Hex(),
		}).Info("receivable minted")

		if d.starter != nil {
			d.starter.StartPolling(msg)
		}
	}()
}

func (d *Detector) advance(latest uint64) {
	d.lastProcessed = latest
}

func (d *Detector) scheduleRetry(block uint64) {
	d.mu.Lock()
	if !d.retryPending || block < d.retryFloor {
		d.retryFloor = block
	}
	d.retryPending = true
	d.mu.Unlock()
}
