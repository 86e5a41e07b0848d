package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petrellis/vigil/pkg/vigil/client"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <http-base-url> <subject-id>",
	Short: "Fetch a one-shot presence snapshot over REST",
	Long: `Fetch the latest presence record for one subject from the relay's
REST endpoint and print it as JSON, without opening a WebSocket.

Examples:
  vigil fetch http://localhost:5173 94490510688792708`,
	Args: cobra.ExactArgs(2),
	RunE: runFetch,
}

var fetchTimeout time.Duration

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 10*time.Second, "Total request timeout")
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	baseURL := args[0]
	subjectID := args[1]

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	logger.Debug("Fetching presence snapshot",
		zap.String("base_url", baseURL),
		zap.String("subject", subjectID),
	)

	record, err := client.FetchSnapshot(ctx, nil, baseURL, subjectID)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	output, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	fmt.Println(string(output))
	return nil
}
