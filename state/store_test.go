package state

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = ethcommon.HexToAddress("0xA11ce00000000000000000000000000000000001")
	relayer = ethcommon.HexToAddress("0x4e1a7e4000000000000000000000000000000002")
	eurc    = ethcommon.HexToAddress("0xEEC00000000000000000000000000000000000c1")
	usdc    = ethcommon.HexToAddress("0x05dc0000000000000000000000000000000000c2")
)

func newReceivable(id int64, owner ethcommon.Address, amount *big.Int) *Receivable {
	return &Receivable{
		Id:            big.NewInt(id),
		MessageHash:   crypto.Keccak256Hash(big.NewInt(id).Bytes()),
		InboundAsset:  usdc,
		InboundAmount: amount,
		MintedAtBlock: 100,
		CurrentOwner:  owner,
	}
}

func TestUpsertGetSnapshot(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	r := newReceivable(1, alice, big.NewInt(1_000_000))
	s.Upsert(r)

	got := s.Get(big.NewInt(1))
	require.NotNil(t, got)
	assert.Equal(t, alice, got.CurrentOwner)
	assert.Nil(t, got.Listing)

	// Get hands out a copy, mutating it must not leak back
	got.CurrentOwner = relayer
	assert.Equal(t, alice, s.Get(big.NewInt(1)).CurrentOwner)

	assert.Nil(t, s.Get(big.NewInt(99)))

	s.Upsert(newReceivable(3, alice, big.NewInt(3)))
	s.Upsert(newReceivable(2, alice, big.NewInt(2)))
	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(1), snap[0].Id.Int64())
	assert.Equal(t, int64(2), snap[1].Id.Int64())
	assert.Equal(t, int64(3), snap[2].Id.Int64())
}

func TestPatchMissingIdIsNoop(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)
	s.Upsert(newReceivable(1, alice, big.NewInt(1)))

	assert.NotPanics(t, func() {
		s.ApplyPatch(big.NewInt(42), Patch{SetListing: true, Listing: &Listing{
			ReservePrice: big.NewInt(990_000),
			PaymentAsset: eurc,
		}})
	})
	assert.Len(t, s.Snapshot(), 1)
	assert.Nil(t, s.Get(big.NewInt(1)).Listing)
}

func TestKnownHashOutlivesRemoval(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	r := newReceivable(1, alice, big.NewInt(1_000_000))
	s.Upsert(r)
	assert.True(t, s.IsKnown(r.MessageHash))

	s.Remove(r.Id)
	assert.Empty(t, s.Snapshot())
	assert.True(t, s.IsKnown(r.MessageHash))

	// casing of the lookup must not matter
	upper := ethcommon.HexToHash(r.MessageHash.Hex())
	assert.True(t, s.IsKnown(upper))
}

func TestMarkKnownDirect(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	h := crypto.Keccak256Hash([]byte("burn"))
	assert.False(t, s.IsKnown(h))
	s.MarkKnown(h)
	assert.True(t, s.IsKnown(h))
}

func TestEmitIsolatesPanickingSubscriber(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	var first, third []EventKind
	s.Subscribe(func(ev Event) { first = append(first, ev.Kind) })
	s.Subscribe(func(ev Event) { panic("misbehaving subscriber") })
	s.Subscribe(func(ev Event) { third = append(third, ev.Kind) })

	assert.NotPanics(t, func() {
		s.Emit(Event{Kind: EventMinted, Id: big.NewInt(1)})
	})
	assert.Equal(t, []EventKind{EventMinted}, first)
	assert.Equal(t, []EventKind{EventMinted}, third)
}

func TestUnsubscribe(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	var count int
	handle := s.Subscribe(func(ev Event) { count++ })

	s.Emit(Event{Kind: EventMinted, Id: big.NewInt(1)})
	s.Unsubscribe(handle)
	s.Emit(Event{Kind: EventSettled, Id: big.NewInt(1)})

	assert.Equal(t, 1, count)
}

// Scenario: mint, list, fill, settle. Mirrors one receivable's full life.
func TestReceivableLifecycle(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)

	r := newReceivable(1, alice, big.NewInt(1_000_000))
	s.Upsert(r)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Nil(t, snap[0].Listing)

	s.ApplyPatch(r.Id, Patch{SetListing: true, Listing: &Listing{
		ReservePrice: big.NewInt(990_000),
		PaymentAsset: eurc,
	}})
	got := s.Get(r.Id)
	require.NotNil(t, got.Listing)
	assert.Equal(t, big.NewInt(990_000), got.Listing.ReservePrice)
	assert.Equal(t, eurc, got.Listing.PaymentAsset)

	owner := relayer
	s.ApplyPatch(r.Id, Patch{SetListing: true, Listing: nil, Owner: &owner})
	got = s.Get(r.Id)
	assert.Nil(t, got.Listing)
	assert.Equal(t, relayer, got.CurrentOwner)

	s.Remove(r.Id)
	assert.Empty(t, s.Snapshot())
	assert.True(t, s.IsKnown(r.MessageHash))
}

func TestWireRoundTrip(t *testing.T) {
	amount, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457", 10)
	require.True(t, ok)

	r := newReceivable(7, alice, amount)
	r.Listing = &Listing{ReservePrice: amount, PaymentAsset: eurc}

	data, err := r.MarshalJSON()
	require.NoError(t, err)

	var back Receivable
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, r.Id, back.Id)
	assert.Equal(t, r.MessageHash, back.MessageHash)
	assert.Equal(t, r.InboundAsset, back.InboundAsset)
	assert.Equal(t, amount, back.InboundAmount)
	assert.Equal(t, r.MintedAtBlock, back.MintedAtBlock)
	assert.Equal(t, r.CurrentOwner, back.CurrentOwner)
	require.NotNil(t, back.Listing)
	assert.Equal(t, amount, back.Listing.ReservePrice)
	assert.Equal(t, eurc, back.Listing.PaymentAsset)
}
