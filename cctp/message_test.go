package cctp

import (
	"encoding/binary"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrowAddr = ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	burnToken  = ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
	senderAddr = ethcommon.HexToAddress("0x3333333333333333333333333333333333333333")
)

func buildRawMessage(t *testing.T, destDomain uint32, mintRecipient ethcommon.Address, amount *big.Int) []byte {
	t.Helper()

	raw := make([]byte, headerLen+bodyLen)
	binary.BigEndian.PutUint32(raw[offVersion:], 0)
	binary.BigEndian.PutUint32(raw[offSourceDomain:], 0)
	binary.BigEndian.PutUint32(raw[offDestinationDomain:], destDomain)
	binary.BigEndian.PutUint64(raw[offNonce:], 42)
	copy(raw[offSender+12:], senderAddr.Bytes())
	copy(raw[offRecipient+12:], mintRecipient.Bytes())

	body := raw[headerLen:]
	binary.BigEndian.PutUint32(body[offBodyVersion:], 0)
	copy(body[offBurnToken+12:], burnToken.Bytes())
	copy(body[offMintRecipient+12:], mintRecipient.Bytes())
	amt := amount.Bytes()
	copy(body[offAmount+32-len(amt):], amt)
	copy(body[offMessageSender+12:], senderAddr.Bytes())

	return raw
}

func TestParseMessage(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	raw := buildRawMessage(t, 7, escrowAddr, amount)

	m, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), m.DestinationDomain)
	assert.Equal(t, uint64(42), m.Nonce)
	assert.Equal(t, escrowAddr, m.Recipient)
	assert.Equal(t, escrowAddr, m.Body.MintRecipient)
	assert.Equal(t, burnToken, m.Body.BurnToken)
	assert.Equal(t, senderAddr, m.Body.MessageSender)
	// large amounts survive exactly
	assert.Equal(t, amount, m.Body.Amount)
}

func TestParseMessageTooShort(t *testing.T) {
	_, err := ParseMessage(make([]byte, headerLen))
	assert.Error(t, err)
}

func TestMessageHashCoversWholeMessage(t *testing.T) {
	raw := buildRawMessage(t, 7, escrowAddr, big.NewInt(1000000))

	// keccak over the whole blob, not any sub-field
	assert.Equal(t, crypto.Keccak256Hash(raw), MessageHash(raw))

	m, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageHash(raw), m.Hash())

	// any single flipped byte changes the key
	raw2 := append([]byte(nil), raw...)
	raw2[len(raw2)-1] ^= 0x01
	assert.NotEqual(t, MessageHash(raw), MessageHash(raw2))
}

func TestRelevantTo(t *testing.T) {
	raw := buildRawMessage(t, 7, escrowAddr, big.NewInt(5))
	m, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.True(t, m.RelevantTo(7, escrowAddr))
	assert.False(t, m.RelevantTo(8, escrowAddr))
	assert.False(t, m.RelevantTo(7, burnToken))
}
