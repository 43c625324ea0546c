package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	var (
		write string
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or save the effective configuration",
		Long: `Print the configuration after defaults, the config file and flags are
merged. With --write or --save the result is stored instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case write != "":
				if err := a.cfg.SaveTo(write); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", write)
				return nil
			case user:
				return a.cfg.Save()
			}
			return a.cfg.Encode(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&write, "write", "", "Write the configuration to this file")
	cmd.Flags().BoolVar(&user, "save", false, "Write the configuration to the user config directory")
	return cmd
}
