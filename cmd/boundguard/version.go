package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/boundguard/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the boundguard build",
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().Short())
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "print only version[-commit]")
	rootCmd.AddCommand(versionCmd)
}
