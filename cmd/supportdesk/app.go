package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/llm"
	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/server"
	"github.com/teilomillet/supportdesk/utils"
	"github.com/teilomillet/supportdesk/voice"
)

// app holds the wired components of a running server.
type app struct {
	server  *server.Server
	watched *knowledge.WatchedStore
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.DefaultLogger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{}
	kbLogger := logger.With("component", "knowledge")
	store := knowledge.NewStore(cfg.KnowledgeBaseDir, kbLogger)
	var source knowledge.Source = store
	if cfg.KnowledgeCache {
		watched, err := knowledge.NewWatchedStore(ctx, store, kbLogger)
		if err != nil {
			return nil, err
		}
		a.watched = watched
		source = watched
	}

	// Provider and voice calls share one connection pool.
	httpClient := &http.Client{Timeout: cfg.Timeout}

	llmLogger := logger.With("component", "llm")
	chain, err := llm.NewChainFromConfig(cfg, providers.NewProviderRegistry(), llmLogger,
		llm.WithMetrics(llm.NewMetrics(reg)),
		llm.WithHTTPClient(httpClient),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	window := llm.HistoryWindow{MaxMessages: cfg.HistoryLimit, MaxTokens: cfg.HistoryMaxTokens}
	if cfg.HistoryMaxTokens > 0 {
		counter, err := llm.NewTokenCounter(cfg.OpenAIModel, llmLogger)
		if err != nil {
			logger.Warn("History token budget disabled", "error", err)
		} else {
			window.Counter = counter
		}
	}

	callClient := voice.NewClient(cfg.APIKey(config.VoiceKey),
		voice.WithEndpoint(cfg.UltravoxEndpoint),
		voice.WithModel(cfg.UltravoxModel),
		voice.WithLogger(logger.With("component", "voice")),
		voice.WithHTTPClient(httpClient),
	)
	if !callClient.Configured() {
		logger.Warn("ULTRAVOX_API_KEY not set; voice calls are disabled")
	}

	opts := []server.Option{
		server.WithRegistry(reg),
		server.WithVoice(callClient),
		server.WithHistoryWindow(window),
	}
	if chain.Len() > 0 {
		opts = append(opts, server.WithGenerateBudget(time.Duration(chain.Len())*cfg.Timeout))
	}
	a.server = server.New(cfg, source, chain, logger.With("component", "server"), opts...)
	return a, nil
}

func (a *app) Close() {
	if a.watched != nil {
		_ = a.watched.Close()
	}
}
