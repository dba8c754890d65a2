package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/history"
	"github.com/hlab/insightchat/internal/llm"
	"github.com/hlab/insightchat/internal/pipeline"
	srv "github.com/hlab/insightchat/internal/server"
	"github.com/hlab/insightchat/internal/telemetry"
)

func main() {
	var root = &cobra.Command{Use: "insightchat"}

	var cfgPath string
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("INSIGHTCHAT_HTTP_ADDR")
			}
			return srv.Run(cfgPath, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var session string
	var contextOnly bool
	var ask = &cobra.Command{
		Use:   "ask [query]",
		Short: "Run one turn against the pipeline and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			store, err := history.New(ctx, cfg.History)
			if err != nil {
				return fmt.Errorf("history store: %w", err)
			}

			query := strings.Join(args, " ")
			pipe := pipeline.New(cfg, tele)
			turn := pipe.ProduceContext(ctx, session, query)

			if contextOnly {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(turn)
			}

			var response string
			if len(turn.Summaries) > 0 && turn.Summaries[0].Success {
				response = turn.Summaries[0].Response
			} else {
				prior, err := store.Recent(ctx, session)
				if err != nil {
					return err
				}
				msgs := prior
				if turn.Context.Text != "" {
					msgs = append([]llm.Message{{Role: "system", Content: turn.Context.Text}}, prior...)
				}
				client := llm.NewClient(cfg.LLM, tele)
				response, err = client.Chat(ctx, "answer", query, msgs)
				if err != nil {
					return err
				}
			}

			_ = store.Append(ctx, session, llm.Message{Role: "user", Content: query})
			_ = store.Append(ctx, session, llm.Message{Role: "assistant", Content: response})

			fmt.Fprintln(cmd.OutOrStdout(), response)
			return nil
		},
	}
	ask.Flags().StringVar(&session, "session", "default", "conversation session id")
	ask.Flags().BoolVar(&contextOnly, "context-only", false, "print the assembled turn as JSON instead of answering")

	var tools = &cobra.Command{
		Use:   "tools",
		Short: "List registered capability providers and their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			pipe := pipeline.New(cfg, tele)

			health := pipe.Router().HealthCheckAll(ctx)
			for _, info := range pipe.Router().Info() {
				status := "down"
				if health[info.Name] {
					status = "up"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-4s %s\n", info.Name, status, info.Description)
			}
			return nil
		},
	}

	root.AddCommand(serve, ask, tools)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
