// Package settlement drives pending transfers to completion. One poller
// per message hash queries the attestation service on a backoff schedule
// and, once the attestation lands (or a configured timeout gives up on
// it), pushes the redemption sequence through the transaction queue.
package settlement

import (
	"context"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/attestor"
	"github.com/meantime-io/receivables-go/cctp"
	"github.com/meantime-io/receivables-go/common"
	"github.com/meantime-io/receivables-go/metrics"
	"github.com/meantime-io/receivables-go/state"
	"github.com/meantime-io/receivables-go/txqueue"
)

// AttestationSource is the slice of the attestation client the manager
// needs.
type AttestationSource interface {
	Get(ctx context.Context, messageHash ethcommon.Hash) (*attestor.Attestation, error)
}

// ChainReader answers whether a transfer is still active on-chain.
type ChainReader interface {
	IsSettled(ctx context.Context, messageHash ethcommon.Hash) (bool, error)
}

// ChainWriter submits the redemption transactions. All three confirm
// their receipt before returning.
type ChainWriter interface {
	RelayMessage(ctx context.Context, message, attestation []byte) (ethcommon.Hash, error)
	FundEscrow(ctx context.Context, messageHash ethcommon.Hash) (ethcommon.Hash, error)
	SettleReceivable(ctx context.Context, messageHash ethcommon.Hash) (ethcommon.Hash, error)
}

// task is one transfer the manager is working on. raw holds the original
// message bytes when the burn was seen by this process; a task revived
// by recovery has none, so its redemption funds the escrow directly
// instead of relaying.
type task struct {
	hash ethcommon.Hash
	raw  []byte
}

type Manager struct {
	cfg      *Config
	attestor AttestationSource
	reader   ChainReader
	writer   ChainWriter
	queue    *txqueue.Queue

	// inflight guards one live poller per hash, keyed by the lowercased
	// hex hash
	mu       sync.Mutex
	inflight map[string]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(att AttestationSource, reader ChainReader, writer ChainWriter, queue *txqueue.Queue, cfg *Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		attestor: att,
		reader:   reader,
		writer:   writer,
		queue:    queue,
		inflight: make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// StartPolling spawns a poller for a freshly minted transfer. A second
// start for the same hash while one is live is a no-op.
func (m *Manager) StartPolling(msg *cctp.Message) {
	m.startTask(task{hash: msg.Hash(), raw: msg.Raw})
}

// StartPollingHash is StartPolling for transfers whose original message
// bytes are no longer available, e.g. after a restart.
func (m *Manager) StartPollingHash(hash ethcommon.Hash) {
	m.startTask(task{hash: hash})
}

// ReceivableMinted guarantees a poller exists for every mint the
// destination watcher observes on chain. It covers a mint whose local
// receipt wait timed out: the burn watcher never handed the transfer
// over, but the mint itself landed.
func (m *Manager) ReceivableMinted(r *state.Receivable) {
	m.StartPollingHash(r.MessageHash)
}

func (m *Manager) startTask(t task) {
	key := common.NormalizeHash(t.hash)

	m.mu.Lock()
	if _, live := m.inflight[key]; live {
		m.mu.Unlock()
		return
	}
	m.inflight[key] = struct{}{}
	m.mu.Unlock()

	logger.WithFields(logger.Fields{"messageHash": key}).Info("attestation poller started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(key)
		m.poll(t)
	}()
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

// Stop asks every live poller to wind down and waits for them. Pollers
// otherwise self-terminate on settlement.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// poll runs the per-transfer state machine. Each tick first checks the
// chain so a settlement reached by any other path ends the poller
// without a redemption, then asks the attestation service. Service
// errors count as pending.
func (m *Manager) poll(t task) {
	key := common.NormalizeHash(t.hash)
	started := time.Now()

	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultReadTimeout)
		settled, err := m.reader.IsSettled(ctx, t.hash)
		cancel()
		if err != nil {
			logger.Warnf("settled check failed for %s: %v", key, err)
		} else if settled {
			logger.WithFields(logger.Fields{"messageHash": key}).Info("transfer settled externally, poller done")
			metrics.Settlements.WithLabelValues("external").Inc()
			return
		}

		ctx, cancel = context.WithTimeout(context.Background(), defaultReadTimeout)
		att, err := m.attestor.Get(ctx, t.hash)
		cancel()
		switch {
		case err != nil:
			metrics.AttestationPolls.WithLabelValues("error").Inc()
			logger.Warnf("attestation poll failed for %s: %v", key, err)
		case att.Complete():
			metrics.AttestationPolls.WithLabelValues("complete").Inc()
			m.redeem(t, att.Attestation, "attested")
			return
		default:
			metrics.AttestationPolls.WithLabelValues("pending").Inc()
		}

		if m.cfg.Timeout > 0 && time.Since(started) >= m.cfg.Timeout {
			logger.WithFields(logger.Fields{"messageHash": key}).Warn("attestation timed out, settling via direct funding")
			m.redeem(t, nil, "auto")
			return
		}

		select {
		case <-m.stopCh:
			return
		case <-time.After(Backoff(m.cfg.PollInterval, m.cfg.MaxBackoff, attempt)):
		}
	}
}

const defaultReadTimeout = 15 * time.Second

// redeem pushes the two-step redemption through the queue as one
// operation: (1) deliver value into the escrow, relaying the attested
// message when we have one and falling back to direct funding, then
// (2) settle by message hash. A step-1 failure never skips step 2; a
// step-2 failure is terminal for this poller and the transfer stays
// active for the next recovery pass.
func (m *Manager) redeem(t task, attestation []byte, path string) {
	key := common.NormalizeHash(t.hash)

	res := m.queue.Submit("settle "+key, func() (ethcommon.Hash, error) {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TxTimeout)
		defer cancel()

		funded := false
		if len(t.raw) > 0 && len(attestation) > 0 {
			if _, err := m.writer.RelayMessage(ctx, t.raw, attestation); err != nil {
				logger.Warnf("message relay failed for %s, funding escrow directly: %v", key, err)
			} else {
				funded = true
			}
		}
		if !funded {
			if _, err := m.writer.FundEscrow(ctx, t.hash); err != nil {
				logger.Errorf("escrow funding failed for %s: %v", key, err)
			}
		}

		return m.writer.SettleReceivable(ctx, t.hash)
	})

	r := <-res
	if r.Err != nil {
		logger.WithFields(logger.Fields{
			"messageHash": key,
			"err":         r.Err,
		}).Error("settlement failed, transfer left active for recovery")
		return
	}

	metrics.Settlements.WithLabelValues(path).Inc()
	logger.WithFields(logger.Fields{
		"messageHash": key,
		"tx":          r.TxHash.Hex(),
		"path":        path,
	}).Info("transfer settled")
}
