package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/nutrilens/internal/model"
	"github.com/amishk599/nutrilens/internal/watch"
)

var (
	watchServer   string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job on a running server",
	Long:  "Poll GET /result/<job-id> on a running server with a spinner until the job finishes, then print the nutrition table.",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:10000", "base URL of the nutrilens server")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "poll interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	id := args[0]
	client := watch.NewClient(watchServer, nil)

	view, err := watch.Run(id, func(ctx context.Context) (model.JobView, error) {
		return client.Result(ctx, id)
	}, watchInterval)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), watch.RenderResult(id, view))
	if view.Status == model.StatusError {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}
