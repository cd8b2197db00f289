package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "leia-enclave",
	Short: "LeiA attestation enclave",
	Long: `leia-enclave v` + version + `
Simulates a LeiA trusted-enclave node: bootstraps per-connection keys to
protected modules and drives the authenticated CAN messaging core against
a log-backed bus.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"path to the enclave's YAML deployment document")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
