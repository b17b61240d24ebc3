package settlement

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/common"
	"github.com/meantime-io/receivables-go/state"
)

// Recover reconciles every transfer still active after backfill. A
// transfer whose attestation completed while the process was down is
// settled immediately; everything else, including hashes the service
// errored on, gets a fresh poller. Runs once at startup, before the
// live watchers.
func (m *Manager) Recover(ctx context.Context, store *state.Store) {
	snapshot := store.Snapshot()
	if len(snapshot) == 0 {
		logger.Info("recovery: no active transfers")
		return
	}

	logger.WithFields(logger.Fields{"active": len(snapshot)}).Info("recovery: reconciling active transfers")

	for _, r := range snapshot {
		key := common.NormalizeHash(r.MessageHash)

		att, err := m.attestor.Get(ctx, r.MessageHash)
		if err != nil {
			logger.Warnf("recovery: attestation query failed for %s, starting poller: %v", key, err)
			m.StartPollingHash(r.MessageHash)
			continue
		}

		if att.Complete() {
			logger.WithFields(logger.Fields{"messageHash": key}).Info("recovery: attestation already complete, settling")
			m.settleRecovered(r.MessageHash, att.Attestation)
			continue
		}

		m.StartPollingHash(r.MessageHash)
	}
}

// settleRecovered runs the redemption sequence directly, skipping the
// polling state. The guard set still brackets it so a poller started
// concurrently for the same hash stays a no-op.
func (m *Manager) settleRecovered(hash ethcommon.Hash, attestation []byte) {
	key := common.NormalizeHash(hash)

	m.mu.Lock()
	if _, live := m.inflight[key]; live {
		m.mu.Unlock()
		return
	}
	m.inflight[key] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(key)
		m.redeem(task{hash: hash}, attestation, "attested")
	}()
}
