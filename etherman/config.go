package etherman

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	// URL is the chain's json rpc endpoint
	URL string

	// ChainID guards against pointing the daemon at the wrong network
	ChainID *big.Int

	// EscrowAddress is the deployed receivables escrow; zero on the
	// source chain, where only the transmitter is watched
	EscrowAddress common.Address

	// TransmitterAddress is the cross-chain message transmitter
	TransmitterAddress common.Address

	// PrivKey signs outgoing transactions; nil makes this a read-only
	// client (the source-chain watcher never writes)
	PrivKey *ecdsa.PrivateKey
}
