package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kbukum/boundguard/resilience"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running boundguard as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" {
				host = "localhost"
			}
			addr = net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
		}
		path := "/status"
		if h, _ := cmd.Flags().GetBool("health"); h {
			path = "/health"
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		doc, code, err := fetchJSON(cmd.Context(), &http.Client{Timeout: timeout}, "http://"+addr+path)
		if err != nil {
			return err
		}
		if err := printYAML(cmd.OutOrStdout(), doc); err != nil {
			return err
		}
		if code == http.StatusServiceUnavailable {
			return fmt.Errorf("%s reports unhealthy", addr)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("addr", "", "host:port of the status server (default: from config)")
	statusCmd.Flags().Bool("health", false, "print the health report instead of the full status")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "per-request timeout")
	rootCmd.AddCommand(statusCmd)
}

// fetchJSON GETs url, retrying transport errors, and decodes the body. A 503
// body is still returned: /health uses it to report an unhealthy ladder.
func fetchJSON(ctx context.Context, client *http.Client, url string) (any, int, error) {
	var (
		doc  any
		code int
	)
	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
		Name:        "status.fetch",
		MaxAttempts: 3,
		Backoff:     resilience.LinearBackoff{Base: 200 * time.Millisecond, Max: time.Second},
	}, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		code = resp.StatusCode
		if code != http.StatusOK && code != http.StatusServiceUnavailable {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("GET %s: %s: %s", url, resp.Status, body)
		}
		return json.NewDecoder(resp.Body).Decode(&doc)
	})
	return doc, code, err
}

func printYAML(w io.Writer, doc any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
