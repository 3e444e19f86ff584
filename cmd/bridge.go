package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wabridge/pkg/chat/whatsmeow"
	"wabridge/pkg/config"
	"wabridge/pkg/logger"
	"wabridge/pkg/media"
	"wabridge/pkg/queue"
	"wabridge/pkg/relay"
	"wabridge/pkg/storage"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the WhatsApp relay bridge",
	Long:  "Connects to WhatsApp, relays inbound messages to the incoming queue and queued outbound envelopes back to WhatsApp. First run prints a pairing QR code.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.bridge")

		supervisor, err := buildSupervisor(cfg, log)
		if err != nil {
			log.Error("Failed to initialize bridge", "error", err)
			os.Exit(1)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Bridge started",
			"incoming_queue", cfg.Storage.IncomingQueue,
			"outgoing_queue", cfg.Storage.OutgoingQueue,
			"container", cfg.Storage.BlobContainer,
			"port", cfg.HTTP.Port)

		if err := supervisor.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bridge runtime failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

// buildSupervisor constructs the Azure and WhatsApp capabilities and wires
// them into the relay supervisor.
func buildSupervisor(cfg *config.Config, log *slog.Logger) (*relay.Supervisor, error) {
	incoming, err := queue.NewAzureQueue(cfg.Storage.ConnectionString, cfg.Storage.IncomingQueue, log)
	if err != nil {
		return nil, fmt.Errorf("incoming queue: %w", err)
	}

	outgoing, err := queue.NewAzureQueue(cfg.Storage.ConnectionString, cfg.Storage.OutgoingQueue, log)
	if err != nil {
		return nil, fmt.Errorf("outgoing queue: %w", err)
	}

	store, err := storage.NewAzureBlobStore(cfg.Storage.ConnectionString, cfg.Storage.BlobContainer, log)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	chatClient := whatsmeow.NewClient(cfg.Chat, log)
	externalizer := media.NewExternalizer(store, log)

	return relay.NewSupervisor(cfg, chatClient, incoming, outgoing, store, externalizer, nil, log)
}
