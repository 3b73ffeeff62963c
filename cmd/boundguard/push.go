package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/queue/redisqueue"
)

var pushCmd = &cobra.Command{
	Use:   "push [job-json]",
	Short: "Queue a graph job on the Redis queue of a running boundguard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.Redis.Enabled {
			return fmt.Errorf("push needs redis.enabled; the in-process queue is only reachable with run --seed")
		}

		payload, err := readJob(cmd, args)
		if err != nil {
			return err
		}

		q, err := redisqueue.New(cfg.Redis, newLogger(cfg))
		if err != nil {
			return err
		}
		defer q.Close()

		key, _ := cmd.Flags().GetString("key")
		item := queue.NewItem(key, payload)
		if err := q.Push(cmd.Context(), item); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), item.ID)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringP("file", "f", "", "read the job from a file")
	pushCmd.Flags().StringP("key", "k", "cli", "admission key of the item")
	rootCmd.AddCommand(pushCmd)
}

// readJob returns the job from the argument or --file, checked to be a
// GraphJob with a root.
func readJob(cmd *cobra.Command, args []string) ([]byte, error) {
	var payload []byte
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		payload = b
	} else if len(args) == 1 {
		payload = []byte(args[0])
	} else {
		return nil, errors.InvalidInput("job", "pass the job as an argument or with --file")
	}
	return payload, validateJob(payload)
}

func validateJob(payload []byte) error {
	var job GraphJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return errors.InvalidInput("job", err.Error())
	}
	if job.Root == "" {
		return errors.InvalidInput("root", "root is required")
	}
	return nil
}
