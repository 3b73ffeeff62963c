package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/boundguard/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume graph jobs from the queue under the configured bounds",
	Long: `Starts the supervised loop and, when enabled, the status server.

Each queue item carries a JSON graph job ({"root": "a", "edges": {"a": ["b"]}})
that is walked with cycle, depth, iteration and time bounds. The loop drains
after too many consecutive failures, on POST /shutdown, or on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}

		if seed, _ := cmd.Flags().GetBool("seed"); seed {
			if err := a.seed(cmd.Context()); err != nil {
				_ = a.stop(cmd.Context())
				return err
			}
			log.Info("sample jobs queued", logger.Fields("count", 3))
		}
		return a.run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().Bool("seed", false, "queue sample jobs, including a cyclic graph, before starting")
	rootCmd.AddCommand(runCmd)
}
