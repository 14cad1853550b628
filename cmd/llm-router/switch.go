package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhuzhichaoTM/llm-router/pkg/cli"
)

var switchFlags struct {
	serverURL string
	operator  string
	reason    string
	force     bool
	delay     int
	output    string
	limit     int
}

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Inspect and control the gateway switch on a running router",
}

var switchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current switch status and counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchRequest(http.MethodGet, "/switch", nil)
	},
}

var switchEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable intelligent routing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleSwitch(true)
	},
}

var switchDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable intelligent routing (fall back to weighted selection)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleSwitch(false)
	},
}

var switchCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending toggle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchRequest(http.MethodDelete, "/switch", nil)
	},
}

var switchHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent toggle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchRequest(http.MethodGet, fmt.Sprintf("/switch/history?limit=%d", switchFlags.limit), nil)
	},
}

func toggleSwitch(enabled bool) error {
	if switchFlags.operator == "" {
		return cli.NewConfigError("", "--operator is required")
	}
	body := map[string]any{
		"enabled":  enabled,
		"operator": switchFlags.operator,
		"reason":   switchFlags.reason,
		"force":    switchFlags.force,
	}
	if switchFlags.delay >= 0 {
		body["delay_seconds"] = switchFlags.delay
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return switchRequest(http.MethodPost, "/switch", payload)
}

// switchRequest performs one admin call and prints the JSON response in
// the selected output format.
func switchRequest(method, path string, payload []byte) error {
	client := &http.Client{Timeout: 10 * time.Second}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, switchFlags.serverURL+path, reqBody)
	if err != nil {
		return cli.NewCommandError("switch", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return cli.NewCommandError("switch", err)
	}
	defer resp.Body.Close()

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return cli.NewCommandError("switch", err)
	}
	if resp.StatusCode >= 400 {
		return cli.NewCommandError("switch", fmt.Errorf("server returned %d: %v", resp.StatusCode, decoded))
	}

	formatter := cli.NewFormatter(cli.OutputFormat(switchFlags.output))
	return formatter.FormatTo(os.Stdout, decoded)
}

func init() {
	rootCmd.AddCommand(switchCmd)
	switchCmd.AddCommand(switchStatusCmd, switchEnableCmd, switchDisableCmd, switchCancelCmd, switchHistoryCmd)

	switchCmd.PersistentFlags().StringVar(&switchFlags.serverURL, "server", "http://localhost:9090", "diagnostic server base URL")
	switchCmd.PersistentFlags().StringVarP(&switchFlags.output, "output", "o", "json", "output format (text, json)")

	for _, c := range []*cobra.Command{switchEnableCmd, switchDisableCmd} {
		c.Flags().StringVar(&switchFlags.operator, "operator", "", "operator name recorded in the audit trail")
		c.Flags().StringVar(&switchFlags.reason, "reason", "", "reason recorded in the audit trail")
		c.Flags().BoolVar(&switchFlags.force, "force", false, "execute immediately, bypassing delay and cooldown")
		c.Flags().IntVar(&switchFlags.delay, "delay", -1, "delay in seconds before the toggle executes (-1 uses the server default)")
	}
	switchHistoryCmd.Flags().IntVar(&switchFlags.limit, "limit", 20, "number of history entries")
}
