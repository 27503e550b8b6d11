package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/webp"

	"github.com/amishk599/nutrilens/internal/model"
)

var detectTimeout time.Duration

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Run one detection job in-process and print the result",
	Long:  "Decode a local image, run it through the detector and nutrition sources, and print the job result as JSON. Nothing is served.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", 5*time.Minute, "give up waiting for the job after this long")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	img, err := imaging.Open(args[0], imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}

	p, err := buildPipeline(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	id, err := p.manager.Submit(img)
	if err != nil {
		return err
	}
	view, err := p.manager.Wait(ctx, id, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("waiting for job %s: %w", id, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return err
	}
	if view.Status == model.StatusError {
		return fmt.Errorf("job %s failed: %s", id, view.Message)
	}
	return nil
}
