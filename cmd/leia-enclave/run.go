package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vulcan-project/leia/abi"
	"github.com/vulcan-project/leia/bus"
	"github.com/vulcan-project/leia/internal/config"
)

var demoMessage string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a deployment document, bootstrap the enclave and exchange one demo message",
	RunE:  runEnclave,
}

func init() {
	runCmd.Flags().StringVar(&demoMessage, "message", "ping", "application payload to send on the first configured connection")
	rootCmd.AddCommand(runCmd)
}

func runEnclave(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	level := zerolog.InfoLevel
	if cfg.Logging.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsed
		}
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()

	participations, err := cfg.Participations()
	if err != nil {
		return errors.Wrap(err, "resolve pm keys")
	}

	connIDs := make([]uint16, 0, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		connIDs = append(connIDs, conn.ID)
	}
	if len(connIDs) == 0 {
		return errors.New("config declares no connections")
	}

	var aecKey [16]byte
	if _, err := rand.Read(aecKey[:]); err != nil {
		return errors.Wrap(err, "generate AEC key")
	}

	sender := bus.NewLogBus(log)
	ctrl := abi.NewController(sender, rand.Reader, log, cfg.AECID, aecKey, connIDs, participations)

	if status, err := ctrl.Initialize(); err != nil {
		return errors.Wrapf(err, "initialize (status %d)", status)
	}
	log.Info().Msg("enclave initialized")

	firstConn := connIDs[0]
	if err := ctrl.AuthSend(firstConn, []byte(demoMessage)); err != nil {
		return errors.Wrap(err, "send demo message")
	}

	fmt.Printf("sent %q on connection %#x\n", demoMessage, firstConn)
	return nil
}
