package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/duskengine/rusk/config"
	"github.com/duskengine/rusk/consensus"
	"github.com/duskengine/rusk/node"
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 bootstrap
// error or FinalConflict, 3 any other runtime failure (StorageFatal
// included).
const (
	exitOK            = 0
	exitConfigError   = 1
	exitBootstrapFail = 2
	exitRuntimeFail   = 3
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "rusk.yaml",
		Usage:   "path to the node configuration file",
	}
	genesisFlag = &cli.StringFlag{
		Name:  "genesis",
		Value: "genesis.yaml",
		Usage: "path to the genesis provisioner snapshot",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "log level: debug, info, warn, error",
	}
	consensusKeysPathFlag = &cli.StringFlag{
		Name:  "consensus-keys-path",
		Usage: "path to the consensus keystore, overrides the config file",
	}
	stateFlag = &cli.StringFlag{
		Name:    "state",
		Aliases: []string{"s"},
		Usage:   "path to the recovery state file, overrides the config file",
	}
	httpListenAddrFlag = &cli.StringFlag{
		Name:  "http-listen-addr",
		Usage: "address the operator HTTP surface listens on, overrides the config file",
	}
	kadcastIDFlag = &cli.UintFlag{
		Name:  "kadcast-id",
		Usage: "kadcast network identifier, overrides the config file",
	}
)

func main() {
	app := &cli.App{
		Name:  "rusk",
		Usage: "Succinct-Attestation consensus node",
		Commands: []*cli.Command{
			runCommand,
			recoveryStateCommand,
		},
		Flags:  []cli.Flag{configFlag, genesisFlag, logLevelFlag},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rusk:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to the process exit code spec.md §6
// documents: 1 for configuration errors, 2 for bootstrap failure or a
// fatal FinalConflict, 3 for any other runtime failure including
// StorageFatal.
func exitCodeFor(err error) int {
	switch err.(type) {
	case configError:
		return exitConfigError
	case bootstrapError:
		return exitBootstrapFail
	}
	switch {
	case errors.Is(err, consensus.ErrFinalConflict):
		return exitBootstrapFail
	case errors.Is(err, consensus.ErrStorageFatal):
		return exitRuntimeFail
	default:
		return exitRuntimeFail
	}
}

type configError struct{ error }
type bootstrapError struct{ error }

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(logger)
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the consensus node (default)",
	Flags: []cli.Flag{
		configFlag, genesisFlag, logLevelFlag,
		consensusKeysPathFlag, stateFlag, httpListenAddrFlag, kadcastIDFlag,
	},
	Action: runAction,
}

// applyFlagOverrides layers the §6 CLI flags over the loaded config file,
// so an operator can override any of them without editing the YAML.
func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if v := c.String("consensus-keys-path"); v != "" {
		cfg.ConsensusKeysPath = v
	}
	if v := c.String("state"); v != "" {
		cfg.StatePath = v
	}
	if v := c.String("http-listen-addr"); v != "" {
		cfg.HTTPListenAddress = v
	}
	if c.IsSet("kadcast-id") {
		cfg.KadcastID = uint8(c.Uint("kadcast-id"))
	}
}

func runAction(c *cli.Context) error {
	logger := newLogger(c.String("log-level"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return configError{fmt.Errorf("load config: %w", err)}
	}
	applyFlagOverrides(c, &cfg)

	genesisProvisioners, err := config.LoadGenesisProvisioners(c.String("genesis"))
	if err != nil {
		return configError{fmt.Errorf("load genesis provisioners: %w", err)}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n, err := node.Bootstrap(ctx, cfg, genesisProvisioners, logger)
	if err != nil {
		return bootstrapError{fmt.Errorf("bootstrap: %w", err)}
	}

	n.Start()
	// Wait for a shutdown signal or for the node to record a fatal error.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for ctx.Err() == nil && n.Err() == nil {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	if ctx.Err() != nil {
		logger.Info("shutdown signal received")
	}
	n.Stop()
	if fatalErr := n.Err(); fatalErr != nil {
		return fatalErr
	}
	return nil
}

var recoveryStateCommand = &cli.Command{
	Name:  "recovery-state",
	Usage: "print the last durably committed block without starting consensus",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return configError{fmt.Errorf("load config: %w", err)}
		}
		return node.PrintRecoveryState(cfg, os.Stdout)
	},
}
