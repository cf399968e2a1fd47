package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSaveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <batchId>",
		Short: "Promote the lines of a ready batch into letters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			saved, err := app.Letters.Save(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, l := range saved {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", l.ID, l.FileName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d letters\n", len(saved))
			return nil
		},
	}
}
