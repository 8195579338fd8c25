package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Answer a single question and exit",
	Example: `  travelrouter ask "What is the status of flight AA123?"
  travelrouter ask --json cheapest flights from JFK to LAX`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the reply and its classification as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out, err := a.assistant.Ask(ctx, "", strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !askJSON {
		fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
		return nil
	}

	resp := codec.NewQueryResponse(out.Reply, out.Resolved, out.SessionID)
	resp.Path = out.Decision.Path
	resp.Rule = out.Decision.Rule
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
