// Package node wires together the consensus round coordinator, the
// chain executor, fork-choice tracking, the networking service and gap
// recovery into a single running process (spec.md §4, §5, §9).
//
// Bootstrap unlocks the consensus key, opens storage, replays any
// persisted chain onto a fresh fork-choice tracker, and returns a Node
// ready to Start. The node then drives rounds back-to-back: round R+1
// never starts until round R's block is durably committed (spec.md §5).
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	stdsync "sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/chain"
	"github.com/duskengine/rusk/config"
	"github.com/duskengine/rusk/consensus"
	"github.com/duskengine/rusk/faults"
	"github.com/duskengine/rusk/forkchoice"
	"github.com/duskengine/rusk/networking"
	"github.com/duskengine/rusk/networking/reqresp"
	"github.com/duskengine/rusk/provisioners"
	"github.com/duskengine/rusk/storage"
	"github.com/duskengine/rusk/storage/pebble"
	"github.com/duskengine/rusk/stf"
	gapsync "github.com/duskengine/rusk/sync"
	"github.com/duskengine/rusk/types"
)

// EnvConsensusKeysPass names the environment variable carrying the
// consensus key unlock password (spec.md §6, SPEC_FULL's bootstrap
// supplement).
const EnvConsensusKeysPass = "DUSK_CONSENSUS_KEYS_PASS"

// defaultGasLimit bounds candidate block size; the protocol leaves the
// exact value to network configuration (spec.md §1's mempool policy is
// explicitly out of scope).
const defaultGasLimit = 5_000_000

// Node is the top-level consensus client process.
type Node struct {
	cfg    config.Config
	logger *logrus.Entry

	store      storage.Store
	forkChoice *forkchoice.Store
	registry   *provisioners.Handle
	faultLog   *faults.Log

	secretKey *bls.SecretKey
	pubkey    types.BLSPubkey

	net         *networking.Service
	executor    *chain.Executor
	syncer      *gapsync.Syncer
	coordinator *consensus.Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	fatalMu  stdsync.Mutex
	fatalErr error
}

// Bootstrap unlocks the consensus key from cfg.ConsensusKeysPath under
// DUSK_CONSENSUS_KEYS_PASS, opens storage, constructs the genesis
// provisioner snapshot, and wires every subsystem together.
func Bootstrap(ctx context.Context, cfg config.Config, genesisProvisioners []types.Provisioner, logger *logrus.Entry) (*Node, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	password := os.Getenv(EnvConsensusKeysPass)
	secretKey, err := LoadConsensusKey(cfg.ConsensusKeysPath, password)
	if err != nil {
		return nil, fmt.Errorf("node: bootstrap: %w", err)
	}

	registry := provisioners.New(genesisProvisioners)
	return New(ctx, cfg, registry, secretKey, logger)
}

// New wires a Node from an already-unlocked secret key and provisioner
// registry; Bootstrap is the usual entry point, this is exposed
// separately for tests.
func New(ctx context.Context, cfg config.Config, registry *provisioners.Registry, secretKey *bls.SecretKey, logger *logrus.Entry) (*Node, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(ctx)

	store, err := pebble.Open(cfg.DBPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	genesisBlock, genesisCert := chain.Genesis(chain.GenesisConfig{
		Timestamp: cfg.GenesisTimestamp.Unix(),
		GasLimit:  defaultGasLimit,
	})

	fc := forkchoice.NewStore(genesisBlock, genesisCert)
	faultLog := faults.NewLog()

	if err := replayPersistedChain(store, fc, genesisBlock.Header.Height, logger); err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("node: replay persisted chain: %w", err)
	}

	host, err := networking.NewHost(ctx, networking.HostConfig{ListenAddrs: []string{cfg.ListenAddress}})
	if err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("node: create host: %w", err)
	}

	bootnodes, err := networking.ParseBootnodes(cfg.BootstrappingNodes)
	if err != nil {
		cancel()
		host.Close()
		store.Close()
		return nil, fmt.Errorf("node: parse bootnodes: %w", err)
	}

	netSvc, err := networking.NewService(ctx, networking.ServiceConfig{Host: host, Bootnodes: bootnodes, Logger: logger})
	if err != nil {
		cancel()
		host.Close()
		store.Close()
		return nil, fmt.Errorf("node: create networking service: %w", err)
	}

	registryHandle := provisioners.NewHandle(registry)

	mempool := chain.NewFIFOPool()
	executor := chain.NewExecutor(stf.NoOp{}, store, fc, faultLog, registryHandle, nil)
	generator := chain.NewGenerator(secretKey, stf.NoOp{}, mempool, defaultGasLimit)

	reqrespHandler := reqresp.NewHandler(store, mempool)
	streamHandler := reqresp.NewStreamHandler(host, reqrespHandler, logger)
	streamHandler.RegisterProtocols()
	syncer := gapsync.New(streamHandler, executor, logger)

	params := consensus.Params{
		MaxIterations: cfg.MaxIterations,
		CreditTarget:  cfg.CreditTarget,
		MinimumStake:  cfg.MinimumStake,
	}
	timeout := consensus.TimeoutConfig{
		BaseProposal:      time.Duration(cfg.BaseTimeoutProposalMs) * time.Millisecond,
		BaseValidation:    time.Duration(cfg.BaseTimeoutValidationMs) * time.Millisecond,
		BaseRatification:  time.Duration(cfg.BaseTimeoutRatificationMs) * time.Millisecond,
		GrowthNumerator:   cfg.TimeoutGrowthNumerator,
		GrowthDenominator: cfg.TimeoutGrowthDenominator,
		MaxTimeout:        time.Duration(cfg.MaxTimeoutMs) * time.Millisecond,
	}
	pubkey := secretKey.PublicKey()
	runner := &consensus.Runner{
		Params:    params,
		Generator: generator,
		Executor:  executor,
		Network:   netSvc,
		Inbox:     netSvc,
		Faults:    faultLog,
		SecretKey: secretKey,
		Pubkey:    pubkey,
	}

	return &Node{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		forkChoice:  fc,
		registry:    registryHandle,
		faultLog:    faultLog,
		secretKey:   secretKey,
		pubkey:      pubkey,
		net:         netSvc,
		executor:    executor,
		syncer:      syncer,
		coordinator: consensus.NewCoordinator(params, timeout, runner),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// replayPersistedChain walks storage from genesisHeight+1 upward,
// replaying each confirmed block onto fc, so a restarted node resumes
// from its last durable commit rather than genesis (spec.md §9's "no
// partial write batches on shutdown" implies what is on disk is always
// replayable).
func replayPersistedChain(store storage.Store, fc *forkchoice.Store, genesisHeight types.Round, logger *logrus.Entry) error {
	height := genesisHeight + 1
	replayed := 0
	for {
		block, ok, err := store.GetBlockByHeight(height)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cert, ok, err := store.GetCertificate(block.Header.Hash)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, err := fc.AcceptBlock(block, cert); err != nil {
			return fmt.Errorf("replay height %d: %w", height, err)
		}
		replayed++
		height++
	}
	if replayed > 0 {
		logger.WithField("blocks", replayed).Info("replayed persisted chain")
	}
	return nil
}

// Start launches networking and the round-driving loop.
func (n *Node) Start() {
	n.net.Start()
	n.wg.Add(2)
	go n.runLoop()
	go n.quorumRecoveryLoop()
	n.logger.WithField("pubkey", n.pubkey).Info("node started")
}

// Stop cancels the round loop and lets the in-flight commit, if any,
// finish before shutting down networking and storage (spec.md §5
// "Cancellation").
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	n.net.Stop()
	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Warn("error closing storage")
	}
	n.logger.Info("node stopped")
}

// Err returns the fatal error that halted the round loop, if any. A
// caller (cmd/rusk/main.go) checks this after Stop returns to decide
// whether the process should exit non-zero (spec.md §7, §6 exit codes).
func (n *Node) Err() error {
	n.fatalMu.Lock()
	defer n.fatalMu.Unlock()
	return n.fatalErr
}

// setFatalErr records a fatal commit error and cancels the round loop's
// context so runLoop stops retrying (spec.md §7: FinalConflict and
// StorageFatal must halt the process, exit codes 2 and 3).
func (n *Node) setFatalErr(err error) {
	n.fatalMu.Lock()
	if n.fatalErr == nil {
		n.fatalErr = err
	}
	n.fatalMu.Unlock()
	n.cancel()
}

// runLoop drives consecutive rounds until the node is stopped. A round
// that exhausts its iterations without a quorum-backed block stalls and
// falls back to network recovery before retrying (spec.md §4.5's hard
// iteration limit, §4.9's recovery boundary).
func (n *Node) runLoop() {
	defer n.wg.Done()

	for n.ctx.Err() == nil {
		head := n.forkChoice.HeadEntry()
		prev := head.Block.Header
		round := prev.Height + 1

		result, err := n.coordinator.RunRound(n.ctx, round, prev, n.registry.Current(), prev.Seed, n.pubkey)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.logger.WithError(err).WithField("round", round).Warn("round aborted")
			continue
		}

		if !result.Produced {
			n.logger.WithField("round", round).Warn("round exhausted iterations, attempting recovery")
			n.attemptRecovery(round, prev)
			continue
		}

		if err := n.executor.Commit(n.ctx, prev, result.Block, result.Cert, true); err != nil {
			if errors.Is(err, consensus.ErrFinalConflict) || errors.Is(err, consensus.ErrStorageFatal) {
				n.logger.WithError(err).WithField("round", round).Error("fatal commit failure, halting")
				n.setFatalErr(err)
				return
			}
			n.logger.WithError(err).WithField("round", round).Error("commit failed")
		}
	}
}

// quorumRecoveryLoop consumes inbound Quorum messages and, whenever one
// announces a round beyond the local head, fetches and commits the gap
// straight from the peer that sent it rather than waiting for this
// node's own iterations to time out (spec.md §4.9).
func (n *Node) quorumRecoveryLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case ev := <-n.net.Quorums():
			n.handleQuorum(ev)
		}
	}
}

func (n *Node) handleQuorum(ev networking.QuorumEvent) {
	head := n.forkChoice.HeadEntry()
	if ev.Header.Round <= head.Block.Header.Height {
		return
	}
	if err := n.syncer.RecoverGap(n.ctx, []peer.ID{ev.From}, head.Block.Header.Height, ev.Header.Round, head.Block.Header); err != nil {
		n.logger.WithError(err).WithField("round", ev.Header.Round).Warn("quorum-triggered recovery failed")
	}
}

// attemptRecovery tries to fetch exactly the stalled round's block from
// a connected peer, so the next loop iteration can resume normally.
func (n *Node) attemptRecovery(round types.Round, prev types.BlockHeader) {
	peers := n.net.Peers()
	if len(peers) == 0 {
		n.logger.Warn("no peers available for recovery")
		return
	}
	if err := n.syncer.RecoverGap(n.ctx, peers, prev.Height, round, prev); err != nil {
		n.logger.WithError(err).WithField("round", round).Warn("recovery failed")
	}
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	return n.net.PeerCount()
}

// PrintRecoveryState opens storage read-only (no networking, no
// consensus) and reports the highest durably committed block, so an
// operator can inspect a stopped node's state before deciding whether
// to resync or restart in place.
func PrintRecoveryState(cfg config.Config, w io.Writer) error {
	store, err := pebble.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("node: open storage: %w", err)
	}
	defer store.Close()

	genesisBlock, _ := chain.Genesis(chain.GenesisConfig{
		Timestamp: cfg.GenesisTimestamp.Unix(),
		GasLimit:  defaultGasLimit,
	})

	height := genesisBlock.Header.Height
	var lastBlock types.Block
	found := false
	for {
		block, ok, err := store.GetBlockByHeight(height + 1)
		if err != nil {
			return fmt.Errorf("node: read height %d: %w", height+1, err)
		}
		if !ok {
			break
		}
		lastBlock = block
		found = true
		height++
	}

	if !found {
		fmt.Fprintf(w, "no committed blocks beyond genesis (height %d)\n", genesisBlock.Header.Height)
		return nil
	}
	fmt.Fprintf(w, "height=%d hash=%x iteration=%d generator=%x\n",
		lastBlock.Header.Height, lastBlock.Header.Hash, lastBlock.Header.Iteration, lastBlock.Header.GeneratorPubkey)
	return nil
}
