// Server = source-chain watcher + destination-chain watcher + settlement
// + state/statedb + tx queue + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/attestor"
	"github.com/meantime-io/receivables-go/burnsync"
	"github.com/meantime-io/receivables-go/escrowsync"
	"github.com/meantime-io/receivables-go/etherman"
	"github.com/meantime-io/receivables-go/reporter"
	"github.com/meantime-io/receivables-go/settlement"
	"github.com/meantime-io/receivables-go/state"
	"github.com/meantime-io/receivables-go/txqueue"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	// watcher config
	frequencyToPollEscrowLogs = 5 * time.Second
	frequencyToPollBurnLogs   = 5 * time.Second

	// settlement config
	frequencyToPollAttestation = 10 * time.Second
	maxAttestationBackoff      = 2 * time.Minute

	// tx queue config
	QUEUE_BUFFER_SIZE = 64
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type BridgeServerConfig struct {
	// source side
	SourceRpcUrl    string // json rpc url of the chain burns happen on
	SourceChainId   int64
	TransmitterAddr string // message transmitter contract address (the protocol deploys it at the same address on both chains)

	// destination side
	DestRpcUrl   string // json rpc url of the chain the escrow lives on
	DestChainId  int64
	EscrowAddr   string // receivables escrow contract address
	SignerPriv   string // private key of the backend controlled account
	DomainId     uint32 // this deployment's destination domain
	LookbackBlks uint64 // backfill window; 0 = default

	// attestation side
	AttestationUrl     string // base url of the attestation service
	AttestationTimeout int64  // seconds before the direct-funding fallback; 0 = wait forever

	// state side
	DbFilePath string // db file path

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// BridgeServer holds the objects that consists of the bridge server.
type BridgeServer struct {
	SourceEtherman *etherman.Etherman
	DestEtherman   *etherman.Etherman

	MyStateDb    *state.StateDB
	MyStore      *state.Store
	MyQueue      *txqueue.Queue
	MySettlement *settlement.Manager
	MyEscrowSync *escrowsync.Synchronizer
	MyBurnSync   *burnsync.Detector
	HttpServer   *reporter.HttpReporter
}

// NewBridgeServer creates and starts a new bridge server.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for all the goroutines inside the server
// (watchers, queue worker, settlement pollers) to finish.
func NewBridgeServer(bsc *BridgeServerConfig, ctx context.Context, wg *sync.WaitGroup) (*BridgeServer, error) {
	// 1) signing key for the destination chain
	privKey, err := StringToPrivateKey(bsc.SignerPriv)
	if err != nil {
		logger.Fatalf("failed to parse signer private key: %v", err)
		return nil, err
	}

	escrowAddr := ethcommon.HexToAddress(bsc.EscrowAddr)
	transmitterAddr := ethcommon.HexToAddress(bsc.TransmitterAddr)

	// 2) destination chain client (writes go through this one)
	destEtherman, err := etherman.NewEtherman(&etherman.Config{
		URL:                bsc.DestRpcUrl,
		ChainID:            optionalChainId(bsc.DestChainId),
		EscrowAddress:      escrowAddr,
		TransmitterAddress: transmitterAddr,
		PrivKey:            privKey,
	})
	if err != nil {
		logger.Fatalf("failed to create destination etherman: %v", err)
		return nil, err
	}
	logger.WithField("address", escrowAddr.Hex()).Info("Escrow contract address")
	logger.WithField("address", destEtherman.SignerAddress().Hex()).Info("Signer account address")

	// 3) source chain client (read-only, no key)
	sourceEtherman, err := etherman.NewEtherman(&etherman.Config{
		URL:                bsc.SourceRpcUrl,
		ChainID:            optionalChainId(bsc.SourceChainId),
		TransmitterAddress: transmitterAddr,
	})
	if err != nil {
		logger.Fatalf("failed to create source etherman: %v", err)
		return nil, err
	}
	logger.WithField("address", transmitterAddr.Hex()).Info("Transmitter contract address")

	// 4) sql db, state_db, projection store
	sqldb, err := sql.Open("sqlite3", bsc.DbFilePath)
	if err != nil {
		logger.Fatalf("failed to open db file: %v", err)
		return nil, err
	}
	myStateDb, err := state.NewStateDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create state db: %v", err)
		return nil, err
	}
	myStore, err := state.NewStore(myStateDb)
	if err != nil {
		logger.Fatalf("failed to create projection store: %v", err)
		return nil, err
	}

	// 5) transaction serialization queue; every destination write from
	// here on goes through it
	myQueue := txqueue.New(QUEUE_BUFFER_SIZE)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myQueue.Start(ctx); err != nil && err != context.Canceled {
			logger.Errorf("tx queue stopped: %v", err)
		}
	}()

	// 6) settlement manager over the attestation service
	mySettlement := settlement.New(
		attestor.NewClient(bsc.AttestationUrl),
		destEtherman,
		destEtherman,
		myQueue,
		&settlement.Config{
			PollInterval: frequencyToPollAttestation,
			MaxBackoff:   maxAttestationBackoff,
			Timeout:      time.Duration(bsc.AttestationTimeout) * time.Second,
		},
	)

	// 7) destination-chain watcher (the only store writer); settlement
	// listens for mints so a poller exists even when the local receipt
	// wait gave up on one
	myEscrowSync := escrowsync.New(
		destEtherman,
		escrowAddr,
		myStore,
		mySettlement,
		&escrowsync.Config{
			PollInterval:   frequencyToPollEscrowLogs,
			LookbackBlocks: bsc.LookbackBlks,
		},
	)

	// 8) source-chain burn watcher; mints through the queue, hands
	// confirmed mints to settlement
	myBurnSync := burnsync.New(
		sourceEtherman,
		transmitterAddr,
		escrowAddr,
		myStore,
		myQueue,
		destEtherman,
		mySettlement,
		&burnsync.Config{
			PollInterval:   frequencyToPollBurnLogs,
			LookbackBlocks: bsc.LookbackBlks,
			Domain:         bsc.DomainId,
		},
	)

	// Startup order matters: rebuild the projection first, reconcile
	// stranded transfers second, only then go live.
	if err := myEscrowSync.Backfill(ctx); err != nil {
		logger.Fatalf("escrow backfill failed: %v", err)
		return nil, err
	}
	if err := myBurnSync.Backfill(ctx); err != nil {
		logger.Fatalf("burn backfill failed: %v", err)
		return nil, err
	}
	mySettlement.Recover(ctx, myStore)

	// Important: turn on the live watchers!
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myEscrowSync.Watch(ctx); err != nil && err != context.Canceled {
			logger.Errorf("escrow watch stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myBurnSync.Watch(ctx); err != nil && err != context.Canceled {
			logger.Errorf("burn watch stopped: %v", err)
		}
	}()
	// Don't forget to call wg.Wait() in the main routine.

	// *** Setup a http server to report status ***
	httpServer := reporter.NewHttpReporter(bsc.HttpIp, bsc.HttpPort, myStore)
	go func() {
		if err := httpServer.Run(); err != nil {
			logger.Errorf("http reporter stopped: %v", err)
		}
	}()

	return &BridgeServer{
		SourceEtherman: sourceEtherman,
		DestEtherman:   destEtherman,
		MyStateDb:      myStateDb,
		MyStore:        myStore,
		MyQueue:        myQueue,
		MySettlement:   mySettlement,
		MyEscrowSync:   myEscrowSync,
		MyBurnSync:     myBurnSync,
		HttpServer:     httpServer,
	}, nil
}

// optionalChainId treats 0 as "don't check", for chains whose id the
// operator left unconfigured.
func optionalChainId(id int64) *big.Int {
	if id == 0 {
		return nil
	}
	return big.NewInt(id)
}

// Create, then start the bridge server and wait.
// Press Ctrl-C to kill the server.
func StartBridgeServerAndWait(bsc *BridgeServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	server, err := NewBridgeServer(bsc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create bridge server: %v", err)
		return
	}

	// Launch a new goroutine to handle the signal
	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, shutting down...\n", sig)
		server.MyEscrowSync.Stop()
		server.MyBurnSync.Stop()
		server.MySettlement.Stop()
		cancel()
	}()

	// wait for all routines to finish
	wg.Wait()
}
