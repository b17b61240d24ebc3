package settlement

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meantime-io/receivables-go/attestor"
	"github.com/meantime-io/receivables-go/cctp"
	"github.com/meantime-io/receivables-go/state"
	"github.com/meantime-io/receivables-go/txqueue"
)

var testHash = ethcommon.HexToHash("0xab00000000000000000000000000000000000000000000000000000000000001")

// testMessage fabricates a parsed message whose Raw round-trips through
// the decoder, so Hash() is stable.
func testMessage(t *testing.T) *cctp.Message {
	t.Helper()
	raw := make([]byte, 248)
	raw[11] = 7 // destination domain
	big.NewInt(1_000_000).FillBytes(raw[184:216])
	msg, err := cctp.ParseMessage(raw)
	require.NoError(t, err)
	return msg
}

type fakeAttestor struct {
	mu      sync.Mutex
	answers []func() (*attestor.Attestation, error)
	calls   int
}

func (f *fakeAttestor) Get(ctx context.Context, hash ethcommon.Hash) (*attestor.Attestation, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	fn := f.answers[idx]
	f.mu.Unlock()
	return fn()
}

func (f *fakeAttestor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pending() func() (*attestor.Attestation, error) {
	return func() (*attestor.Attestation, error) {
		return &attestor.Attestation{Status: attestor.StatusPending}, nil
	}
}

func complete(att []byte) func() (*attestor.Attestation, error) {
	return func() (*attestor.Attestation, error) {
		return &attestor.Attestation{Status: attestor.StatusComplete, Attestation: att}, nil
	}
}

func failing(err error) func() (*attestor.Attestation, error) {
	return func() (*attestor.Attestation, error) { return nil, err }
}

type fakeReader struct {
	mu      sync.Mutex
	settled []bool
	calls   int
	err     error
}

func (f *fakeReader) IsSettled(ctx context.Context, hash ethcommon.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if idx >= len(f.settled) {
		idx = len(f.settled) - 1
	}
	if idx < 0 {
		return false, nil
	}
	return f.settled[idx], nil
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWriter struct {
	mu        sync.Mutex
	trace     []string
	relayErr  error
	fundErr   error
	settleErr error
}

func (f *fakeWriter) RelayMessage(ctx context.Context, message, attestation []byte) (ethcommon.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, "relay")
	return ethcommon.HexToHash("0x01"), f.relayErr
}

func (f *fakeWriter) FundEscrow(ctx context.Context, hash ethcommon.Hash) (ethcommon.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, "fund")
	return ethcommon.HexToHash("0x02"), f.fundErr
}

func (f *fakeWriter) SettleReceivable(ctx context.Context, hash ethcommon.Hash) (ethcommon.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, "settle")
	return ethcommon.HexToHash("0x03"), f.settleErr
}

func (f *fakeWriter) steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func newTestManager(t *testing.T, att *fakeAttestor, reader *fakeReader, writer *fakeWriter, timeout time.Duration) (*Manager, func()) {
	t.Helper()
	queue := txqueue.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	go queue.Start(ctx)

	m := New(att, reader, writer, queue, &Config{
		PollInterval: 5 * time.Millisecond,
		MaxBackoff:   20 * time.Millisecond,
		Timeout:      timeout,
	})
	return m, cancel
}

func TestAlreadySettledStopsPollerWithoutRedemption(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){pending()}}
	reader := &fakeReader{settled: []bool{true}}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	assert.Empty(t, writer.steps())
	assert.Equal(t, 0, att.callCount())
	assert.Equal(t, 1, reader.callCount())
}

func TestAttestedRedemptionRelaysThenSettles(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	assert.Equal(t, []string{"relay", "settle"}, writer.steps())
}

func TestRelayFailureFallsBackToDirectFunding(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{relayErr: errors.New("transmitter unavailable")}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	assert.Equal(t, []string{"relay", "fund", "settle"}, writer.steps())
}

func TestFundingFailureStillSettles(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{relayErr: errors.New("relay down"), fundErr: errors.New("fund reverted")}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	assert.Equal(t, []string{"relay", "fund", "settle"}, writer.steps())
}

func TestAttestationErrorTreatedAsPending(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){
		failing(errors.New("bad gateway")),
		complete([]byte{0xaa}),
	}}
	reader := &fakeReader{}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))

	require.Eventually(t, func() bool {
		return len(writer.steps()) == 2
	}, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.Equal(t, []string{"relay", "settle"}, writer.steps())
	assert.Equal(t, 2, att.callCount())
}

func TestTimeoutFallsBackToDirectFunding(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){pending()}}
	reader := &fakeReader{}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 1*time.Nanosecond)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	// no attestation was ever obtained, so no relay step
	assert.Equal(t, []string{"fund", "settle"}, writer.steps())
}

func TestDuplicateStartIsNoOp(t *testing.T) {
	release := make(chan struct{})
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){
		func() (*attestor.Attestation, error) {
			<-release
			return &attestor.Attestation{Status: attestor.StatusComplete, Attestation: []byte{0xaa}}, nil
		},
	}}
	reader := &fakeReader{}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	msg := testMessage(t)
	m.StartPolling(msg)
	require.Eventually(t, func() bool {
		return reader.callCount() == 1
	}, time.Second, time.Millisecond)

	m.StartPolling(msg) // first poller still live
	close(release)
	m.Stop()

	assert.Equal(t, 1, att.callCount())
	assert.Equal(t, 1, reader.callCount())
	assert.Equal(t, []string{"relay", "settle"}, writer.steps())
}

func TestSettleFailureIsTerminal(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{settleErr: errors.New("execution reverted")}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	m.StartPolling(testMessage(t))
	m.Stop()

	// one attempt, no retry loop
	assert.Equal(t, []string{"relay", "settle"}, writer.steps())
	assert.Equal(t, 1, att.callCount())
}

func TestPollerCanRestartAfterTermination(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{settleErr: errors.New("execution reverted")}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	msg := testMessage(t)
	m.StartPolling(msg)
	m.wg.Wait()

	// the guard entry was cleared, so a later start works
	m.StartPolling(msg)
	m.Stop()

	assert.Equal(t, 2, att.callCount())
}

func TestReceivableMintedEnsuresPoller(t *testing.T) {
	att := &fakeAttestor{answers: []func() (*attestor.Attestation, error){complete([]byte{0xaa})}}
	reader := &fakeReader{}
	writer := &fakeWriter{}

	m, cancel := newTestManager(t, att, reader, writer, 0)
	defer cancel()

	// a mint observed from chain logs carries no raw message bytes, so
	// its redemption funds the escrow directly instead of relaying
	m.ReceivableMinted(&state.Receivable{Id: big.NewInt(1), MessageHash: testHash})
	m.Stop()

	assert.Equal(t, []string{"fund", "settle"}, writer.steps())
	assert.Equal(t, 1, att.callCount())
}

func TestBackoffSchedule(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second

	assert.Equal(t, 2*time.Second, Backoff(base, max, 0))
	assert.Equal(t, 4*time.Second, Backoff(base, max, 1))
	assert.Equal(t, 8*time.Second, Backoff(base, max, 2))
	assert.Equal(t, 16*time.Second, Backoff(base, max, 3))
	assert.Equal(t, 30*time.Second, Backoff(base, max, 4))
	assert.Equal(t, 30*time.Second, Backoff(base, max, 5))

	// huge attempt counts must not overflow into a negative delay
	assert.Equal(t, max, Backoff(base, max, 200))

	assert.Equal(t, time.Duration(0), Backoff(0, max, 3))
}
