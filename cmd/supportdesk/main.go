// Package main provides the supportdesk command: the chat and voice API server
// plus a few knowledge base inspection tools.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/llm"
	"github.com/teilomillet/supportdesk/server"
	"github.com/teilomillet/supportdesk/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	logLevel     string
	logFormat    string
	knowledgeDir string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "supportdesk",
		Short:        "Knowledge-grounded customer support chat backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (off, error, warn, info, debug); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (text, json); overrides LOG_FORMAT")
	root.PersistentFlags().StringVar(&flags.knowledgeDir, "knowledge-dir", "", "Knowledge base directory; overrides KNOWLEDGE_BASE_DIR")

	root.AddCommand(serveCmd(flags), knowledgeCmd(flags), promptCmd(flags), schemaCmd())
	return root
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(flags *rootFlags) (*config.Config, *utils.DefaultLogger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		var level utils.LogLevel
		if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
			return nil, nil, err
		}
		config.ApplyOptions(cfg, config.SetLogLevel(level))
	}
	if flags.logFormat != "" {
		var format utils.LogFormat
		if err := format.UnmarshalText([]byte(flags.logFormat)); err != nil {
			return nil, nil, err
		}
		config.ApplyOptions(cfg, config.SetLogFormat(format))
	}
	if flags.knowledgeDir != "" {
		config.ApplyOptions(cfg, config.SetKnowledgeBaseDir(flags.knowledgeDir))
	}
	return cfg, utils.NewServiceLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr), nil
}

func serveCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.server.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides LISTEN_ADDR")
	return cmd
}

func knowledgeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "knowledge",
		Short: "List the knowledge base documents and the prompt size they produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			docs, err := knowledge.NewStore(cfg.KnowledgeBaseDir, logger).Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, knowledge.Summary(docs))

			counter, err := llm.NewTokenCounter(cfg.OpenAIModel, logger)
			if err != nil {
				logger.Warn("Token estimate unavailable", "error", err)
				return nil
			}
			prompt := knowledge.BuildSystemPrompt(cfg.CompanyName, docs)
			fmt.Fprintf(out, "\nSystem prompt: %d characters, ~%d tokens\n", len(prompt), counter.Count(prompt))
			return nil
		},
	}
}

func promptCmd(flags *rootFlags) *cobra.Command {
	var forVoice bool
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt built from the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			docs, err := knowledge.NewStore(cfg.KnowledgeBaseDir, logger).Load()
			if err != nil {
				return err
			}
			company := cfg.CompanyName
			if forVoice {
				company = cfg.VoiceCompanyName
			}
			fmt.Fprintln(cmd.OutOrStdout(), knowledge.BuildSystemPrompt(company, docs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&forVoice, "voice", false, "use the voice agent company name")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the API request and response bodies",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(server.Schemas())
		},
	}
}
