// Hand-maintained binding for the deployed ReceivablesEscrow contract.
// Covers only the surface the backend uses: mint/fund/settle writes, the
// read accessors, and the five lifecycle events. The contract itself is
// deployed separately and is the sole authority for the domain rules this
// backend projects.
package ReceivablesEscrow

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const ReceivablesEscrowABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":true,"internalType":"bytes32","name":"messageHash","type":"bytes32"},{"indexed":false,"internalType":"address","name":"owner","type":"address"},{"indexed":false,"internalType":"address","name":"asset","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"Minted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":false,"internalType":"address","name":"paymentAsset","type":"address"},{"indexed":false,"internalType":"uint256","name":"reservePrice","type":"uint256"}],"name":"Listed","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"Delisted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":true,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"}],"name":"Filled","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":true,"internalType":"bytes32","name":"messageHash","type":"bytes32"}],"name":"Settled","type":"event"},
{"inputs":[{"internalType":"bytes32","name":"messageHash","type":"bytes32"},{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"mint","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"bytes32","name":"messageHash","type":"bytes32"}],"name":"fund","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"bytes32","name":"messageHash","type":"bytes32"}],"name":"settle","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"bytes32","name":"messageHash","type":"bytes32"}],"name":"isSettled","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

type ReceivablesEscrow struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

func NewReceivablesEscrow(address common.Address, backend bind.ContractBackend) (*ReceivablesEscrow, error) {
	parsed, err := abi.JSON(strings.NewReader(ReceivablesEscrowABI))
	if err != nil {
		return nil, err
	}

	return &ReceivablesEscrow{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (e *ReceivablesEscrow) Address() common.Address {
	return e.address
}

// EventID returns the topic hash for one of the five lifecycle events.
func (e *ReceivablesEscrow) EventID(name string) common.Hash {
	return e.abi.Events[name].ID
}

func (e *ReceivablesEscrow) Mint(opts *bind.TransactOpts, messageHash [32]byte, owner common.Address, asset common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.contract.Transact(opts, "mint", messageHash, owner, asset, amount)
}

func (e *ReceivablesEscrow) Fund(opts *bind.TransactOpts, messageHash [32]byte) (*types.Transaction, error) {
	return e.contract.Transact(opts, "fund", messageHash)
}

func (e *ReceivablesEscrow) Settle(opts *bind.TransactOpts, messageHash [32]byte) (*types.Transaction, error) {
	return e.contract.Transact(opts, "settle", messageHash)
}

func (e *ReceivablesEscrow) IsSettled(opts *bind.CallOpts, messageHash [32]byte) (bool, error) {
	var out []interface{}
	err := e.contract.Call(opts, &out, "isSettled", messageHash)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (e *ReceivablesEscrow) OwnerOf(opts *bind.CallOpts, tokenId *big.Int) (common.Address, error) {
	var out []interface{}
	err := e.contract.Call(opts, &out, "ownerOf", tokenId)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

type ReceivablesEscrowMinted struct {
	TokenId     *big.Int
	MessageHash [32]byte
	Owner       common.Address
	Asset       common.Address
	Amount      *big.Int
	Raw         types.Log
}

type ReceivablesEscrowListed struct {
	TokenId      *big.Int
	PaymentAsset common.Address
	ReservePrice *big.Int
	Raw          types.Log
}

type ReceivablesEscrowDelisted struct {
	TokenId *big.Int
	Raw     types.Log
}

type ReceivablesEscrowFilled struct {
	TokenId *big.Int
	Buyer   common.Address
	Price   *big.Int
	Raw     types.Log
}

type ReceivablesEscrowSettled struct {
	TokenId     *big.Int
	MessageHash [32]byte
	Raw         types.Log
}

func (e *ReceivablesEscrow) ParseMinted(log types.Log) (*ReceivablesEscrowMinted, error) {
	ev := new(ReceivablesEscrowMinted)
	if err := e.contract.UnpackLog(ev, "Minted", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

func (e *ReceivablesEscrow) ParseListed(log types.Log) (*ReceivablesEscrowListed, error) {
	ev := new(ReceivablesEscrowListed)
	if err := e.contract.UnpackLog(ev, "Listed", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

func (e *ReceivablesEscrow) ParseDelisted(log types.Log) (*ReceivablesEscrowDelisted, error) {
	ev := new(ReceivablesEscrowDelisted)
	if err := e.contract.UnpackLog(ev, "Delisted", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

func (e *ReceivablesEscrow) ParseFilled(log types.Log) (*ReceivablesEscrowFilled, error) {
	ev := new(ReceivablesEscrowFilled)
	if err := e.contract.UnpackLog(ev, "Filled", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

func (e *ReceivablesEscrow) ParseSettled(log types.Log) (*ReceivablesEscrowSettled, error) {
	ev := new(ReceivablesEscrowSettled)
	if err := e.contract.UnpackLog(ev, "Settled", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}
