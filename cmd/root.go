package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command; subcommands attach themselves in init().
var rootCmd = &cobra.Command{
	Use:   "wabridge",
	Short: "Bridge WhatsApp chats and Azure Storage queues",
	Long:  "Relays WhatsApp messages into an Azure Storage queue and queued envelopes back into WhatsApp, externalizing media through Blob Storage.",
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
