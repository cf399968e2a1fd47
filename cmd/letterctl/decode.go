package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"letters-backend/internal/barcode"
)

func newDecodeCmd(root *rootOptions) *cobra.Command {
	var previewDir string
	cmd := &cobra.Command{
		Use:   "decode <pdf>...",
		Short: "Decode the barcode of each scanned letter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.loadConfig()
			extractor := barcode.NewExtractor()
			extractor.Separator = cfg.BarcodeSeparator
			extractor.DPI = cfg.BarcodeDPI
			extractor.MaxPages = cfg.BarcodeMaxPages
			extractor.PreviewWidth = cfg.BarcodePreviewWidth

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				res, err := extractor.Extract(cmd.Context(), data, filepath.Base(path))
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s\terror\t%v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", path, res.PartnerCode, res.ChildCode, res.Source)
				if previewDir != "" && len(res.Preview) > 0 {
					name := filepath.Join(previewDir, trimExt(filepath.Base(path))+".jpg")
					if err := os.WriteFile(name, res.Preview, 0o644); err != nil {
						return fmt.Errorf("write preview: %w", err)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents could not be decoded", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&previewDir, "preview-dir", "", "write a JPEG preview per document into this directory")
	return cmd
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
