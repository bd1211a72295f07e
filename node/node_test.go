package node

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/config"
	"github.com/duskengine/rusk/provisioners"
	"github.com/duskengine/rusk/types"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logrus.NewEntry(logger)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "chain.db")
	cfg.ListenAddress = "/ip4/127.0.0.1/tcp/0"
	cfg.GenesisTimestamp = time.Unix(1_700_000_000, 0)
	return cfg
}

func TestNewWiresUpAndStops(t *testing.T) {
	sk, err := bls.KeyGen(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	registry := provisioners.New([]types.Provisioner{
		{BLSPubkey: sk.PublicKey(), StakeAmount: 2_000_000_000},
	})

	n, err := New(context.Background(), testConfig(t), registry, sk, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n.Start()
	if got := n.PeerCount(); got != 0 {
		t.Errorf("PeerCount() = %d, want 0 with no bootnodes", got)
	}
	n.Stop()
}

func TestPrintRecoveryStateEmptyChain(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	if err := PrintRecoveryState(cfg, &buf); err != nil {
		t.Fatalf("PrintRecoveryState: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected a status line for an empty chain")
	}
}
