package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"letters-backend/internal/letters"
	"letters-backend/internal/progress"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var (
		configID string
		operator string
		autoSave bool
	)
	cmd := &cobra.Command{
		Use:   "import <pdf>...",
		Short: "Create a batch, upload scans and run the import",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			svc := app.Letters

			batch, err := svc.Create(ctx, letters.CreateInput{ConfigID: configID, CreatedBy: operator})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "batch %s created\n", batch.ID)

			upload := progressbar.NewOptions(len(args),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("uploading"),
				progressbar.OptionShowCount(),
			)
			for _, path := range args {
				if err := addFile(ctx, svc, batch.ID, path); err != nil {
					return err
				}
				_ = upload.Add(1)
			}
			_ = upload.Finish()

			summary, err := runWithProgress(ctx, svc, app.Progress, batch.ID, len(args), cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "processed %d/%d, lines %d, skipped %d\n",
				summary.Processed, summary.Total, summary.LinesCreated, len(summary.Skipped))
			for _, skip := range summary.Skipped {
				fmt.Fprintf(out, "  skipped %s (%s): %s\n", skip.FileName, skip.Kind, skip.Error)
			}

			view, err := svc.Get(ctx, batch.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "state %s\n", view.State.Label())
			if !autoSave {
				return nil
			}
			saved, err := svc.Save(ctx, batch.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %d letters\n", len(saved))
			return nil
		},
	}
	cmd.Flags().StringVar(&configID, "config", "", "import profile id")
	cmd.Flags().StringVar(&operator, "operator", os.Getenv("USER"), "operator recorded as batch creator")
	cmd.Flags().BoolVar(&autoSave, "save", false, "save letters when the batch is ready")
	return cmd
}

func addFile(ctx context.Context, svc *letters.Service, batchID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := svc.AddDocument(ctx, batchID, filepath.Base(path), f); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}

// runWithProgress runs the import synchronously and mirrors the tracker's
// progress entry onto a terminal bar.
func runWithProgress(ctx context.Context, svc *letters.Service, tracker progress.Tracker, batchID string, total int, cmd *cobra.Command) (letters.RunSummary, error) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionShowCount(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p, ok, err := tracker.Get(ctx, batchID); err == nil && ok {
					_ = bar.Set(p.Processed + p.Skipped)
				}
			}
		}
	}()

	summary, err := svc.RunImport(ctx, batchID)
	close(done)
	if err == nil {
		_ = bar.Finish()
	}
	return summary, err
}
