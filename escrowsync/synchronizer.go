// Destination-chain reconciler: rebuilds the projection from historical
// escrow logs at startup, then keeps it current by polling for new logs.
// This is the only component that mutates the store from chain events.
package escrowsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/common"
	"github.com/meantime-io/receivables-go/metrics"
	"github.com/meantime-io/receivables-go/state"
)

// LogSource is the slice of the chain client the synchronizer needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, address ethcommon.Address, topics [][]ethcommon.Hash) ([]types.Log, error)
}

// Notifier learns about receivables the moment they enter the store, so
// the settlement engine can make sure a poller exists. May be nil.
type Notifier interface {
	ReceivableMinted(r *state.Receivable)
}

type Synchronizer struct {
	cfg        *Config
	source     LogSource
	escrowAddr ethcommon.Address
	store      *state.Store
	notifier   Notifier // optional

	lastProcessed uint64
	firstLiveTick bool

	stopOnce sync.Once
	stopped  atomic.Bool
	stopCh   chan struct{}
}

func New(source LogSource, escrowAddr ethcommon.Address, store *state.Store, notifier Notifier, cfg *Config) *Synchronizer {
	return &Synchronizer{
		cfg:           cfg.withDefaults(),
		source:        source,
		escrowAddr:    escrowAddr,
		store:         store,
		notifier:      notifier,
		firstLiveTick: true,
		stopCh:        make(chan struct{}),
	}
}

// Backfill replays historical escrow logs into the store, in bounded
// chunks, applying each kind in the fixed order. The window always spans
// the full lookback: the projection is in-memory only, so narrowing a
// restart's replay would silently drop every receivable minted before
// the cutoff. The store's idempotent upsert makes the replay harmless.
// A failing chunk is logged and skipped: partial history beats no
// history.
func (s *Synchronizer) Backfill(ctx context.Context) error {
	latest, err := s.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	from := uint64(0)
	if latest > s.cfg.LookbackBlocks {
		from = latest - s.cfg.LookbackBlocks
	}

	batch := &EventBatch{}
	if from <= latest {
		for start := from; start <= latest; start += s.cfg.ChunkSize {
			end := start + s.cfg.ChunkSize - 1
			if end > latest {
				end = latest
			}

			logs, err := s.source.FilterLogs(ctx, start, end, s.escrowAddr, [][]ethcommon.Hash{AllSignatureHashes})
			if err != nil {
				metrics.BackfillChunkErrors.Inc()
				logger.WithFields(logger.Fields{
					"from": start,
					"to":   end,
					"err":  err,
				}).Error("backfill chunk failed, skipped")
				continue
			}
			batch.Append(DecodeLogs(logs))
		}
	}

	s.apply(batch)
	s.advance(latest)

	logger.WithFields(logger.Fields{
		"from":   from,
		"to":     latest,
		"minted": len(batch.Minted),
		"active": len(s.store.Snapshot()),
	}).Info("escrow backfill complete")
	return nil
}

// Watch polls for new escrow logs until ctx is cancelled or Stop is
// called. A failing tick is logged and swallowed; the ticker fires again
// regardless, so a transient rpc error never silently ends the watch.
func (s *Synchronizer) Watch(ctx context.Context) error {
	logger.Info("starting escrow watch")
	defer logger.Info("stopping escrow watch")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if s.stopped.Load() {
				return nil
			}
			if err := s.tick(ctx); err != nil {
				logger.Errorf("escrow watch tick failed: %v", err)
			}
		}
	}
}

// Stop is idempotent and keeps any further tick from touching the chain.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

func (s *Synchronizer) tick(ctx context.Context) error {
	latest, err := s.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	from := s.lastProcessed + 1
	if s.firstLiveTick {
		// close the gap between backfill's cutoff and the first tick
		if from > s.cfg.OverlapBlocks {
			from -= s.cfg.OverlapBlocks
		} else {
			from = 0
		}
		s.firstLiveTick = false
	}

	if latest < from {
		return nil
	}

	batch := &EventBatch{}
	for start := from; start <= latest; start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize - 1
		if end > latest {
			end = latest
		}
		logs, err := s.source.FilterLogs(ctx, start, end, s.escrowAddr, [][]ethcommon.Hash{AllSignatureHashes})
		if err != nil {
			return err
		}
		batch.Append(DecodeLogs(logs))
	}

	s.apply(batch)
	s.advance(latest)
	return nil
}

// apply drives the fixed event-to-store mapping, one kind at a time.
func (s *Synchronizer) apply(batch *EventBatch) {
	for _, ev := range batch.Minted {
		r := &state.Receivable{
			Id:            ev.TokenId,
			MessageHash:   ev.MessageHash,
			InboundAsset:  ev.Asset,
			InboundAmount: ev.Amount,
			MintedAtBlock: ev.BlockNumber,
			CurrentOwner:  ev.Owner,
		}
		s.store.Upsert(r)
		s.store.Emit(state.Event{Kind: state.EventMinted, Id: ev.TokenId, Receivable: r.Clone()})
		metrics.EventsApplied.WithLabelValues(string(state.EventMinted)).Inc()

		if s.notifier != nil {
			s.notifier.ReceivableMinted(r.Clone())
		}
	}

	for _, ev := range batch.Listed {
		s.store.ApplyPatch(ev.TokenId, state.Patch{
			SetListing: true,
			Listing: &state.Listing{
				ReservePrice: common.BigIntClone(ev.ReservePrice),
				PaymentAsset: ev.PaymentAsset,
			},
		})
		s.store.Emit(state.Event{Kind: state.EventListed, Id: ev.TokenId, Receivable: s.store.Get(ev.TokenId)})
		metrics.EventsApplied.WithLabelValues(string(state.EventListed)).Inc()
	}

	for _, ev := range batch.Delisted {
		s.store.ApplyPatch(ev.TokenId, state.Patch{SetListing: true, Listing: nil})
		s.store.Emit(state.Event{Kind: state.EventDelisted, Id: ev.TokenId, Receivable: s.store.Get(ev.TokenId)})
		metrics.EventsApplied.WithLabelValues(string(state.EventDelisted)).Inc()
	}

	for _, ev := range batch.Filled {
		buyer := ev.Buyer
		s.store.ApplyPatch(ev.TokenId, state.Patch{SetListing: true, Listing: nil, Owner: &buyer})
		s.store.Emit(state.Event{Kind: state.EventFilled, Id: ev.TokenId, Receivable: s.store.Get(ev.TokenId)})
		metrics.EventsApplied.WithLabelValues(string(state.EventFilled)).Inc()
	}

	for _, ev := range batch.Settled {
		s.store.MarkKnown(ev.MessageHash)
		s.store.Remove(ev.TokenId)
		s.store.Emit(state.Event{Kind: state.EventSettled, Id: ev.TokenId})
		metrics.EventsApplied.WithLabelValues(string(state.EventSettled)).Inc()
	}
}

func (s *Synchronizer) advance(latest uint64) {
	s.lastProcessed = latest
}
