package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wabridge/pkg/config"
	"wabridge/pkg/envelope"
	"wabridge/pkg/queue"
)

var (
	sendChatID string
	sendText   string
)

// sendCmd enqueues one text envelope onto the outgoing queue, the same
// shape the bridge's /send route produces. Useful for smoke-testing the
// outbound path without a second service.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Enqueue a text message for WhatsApp delivery",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		chatID := strings.TrimSpace(sendChatID)
		if chatID == "" {
			fmt.Println("--chat-id is required")
			os.Exit(1)
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}

		outgoing, err := queue.NewAzureQueue(cfg.Storage.ConnectionString, cfg.Storage.OutgoingQueue, nil)
		if err != nil {
			fmt.Printf("failed to initialize queue: %v\n", err)
			os.Exit(1)
		}

		env := envelope.NewText(chatID, "cli@wabridge", sendText, true)
		payload, err := env.Encode()
		if err != nil {
			fmt.Printf("failed to encode envelope: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := outgoing.EnsureExists(ctx); err != nil {
			fmt.Printf("failed to prepare queue: %v\n", err)
			os.Exit(1)
		}
		if err := outgoing.Enqueue(ctx, payload); err != nil {
			fmt.Printf("failed to enqueue: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("enqueued to %s: %s\n", cfg.Storage.OutgoingQueue, sendText)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendChatID, "chat-id", "", "target conversation id (JID)")
	sendCmd.Flags().StringVar(&sendText, "text", "pong", "message text")
	rootCmd.AddCommand(sendCmd)
}
