package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zen-systems/modelgate/pkg/classify"
	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/gateway"
	"github.com/zen-systems/modelgate/pkg/observe"
	"github.com/zen-systems/modelgate/pkg/provider"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Request orchestration gateway for LLM text generation providers",
		Long: `Modelgate sits in front of interchangeable text generation providers
	and handles rate limiting, request deduplication, circuit breaking,
	task classification, and provider routing.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to gateway config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(categoriesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var (
		modeFlag      string
		providerFlag  string
		modelFlag     string
		strategyFlag  string
		techniqueFlag string
		callerFlag    string
		temperature   float64
		maxTokens     int
		jsonOut       bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt through the gateway",
		Long: `Classifies the prompt, selects providers under the configured
	strategy, and executes it in the chosen mode.

	FAST invokes the single best provider with no fallback.
	BALANCED walks the fallback chain until a provider succeeds.
	ROUND_TABLE fans out to several providers and picks the best answer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGateway()
			if err != nil {
				return err
			}

			resp, err := g.Submit(context.Background(), gateway.Request{
				CallerID:    callerFlag,
				Prompt:      args[0],
				Mode:        gateway.ExecutionMode(modeFlag),
				Provider:    providerFlag,
				Model:       modelFlag,
				Strategy:    strategyFlag,
				Technique:   classify.Technique(techniqueFlag),
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(resp)
			}

			fmt.Fprintf(os.Stderr, "Answered by %s/%s (category=%s technique=%s mode=%s)\n",
				resp.Provider, resp.Model, resp.Category, resp.Technique, resp.Mode)
			if resp.Deduplicated {
				fmt.Fprintln(os.Stderr, "Served from a collapsed duplicate request")
			}
			fmt.Println(resp.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "execution mode (FAST, BALANCED, ROUND_TABLE)")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "force a specific provider")
	cmd.Flags().StringVar(&modelFlag, "model", "", "override the provider's default model")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "", "routing strategy (priority, cost, latency, round_robin)")
	cmd.Flags().StringVar(&techniqueFlag, "technique", "", "override the prompting technique")
	cmd.Flags().StringVar(&callerFlag, "caller", "cli", "caller id for rate limiting")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max completion tokens")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full response as JSON")

	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show pipeline health: breakers, rate limits, caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGateway()
			if err != nil {
				return err
			}
			return printJSON(g.Health())
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tDEFAULT MODEL\tPRIORITY\tCOST TIER\tSTATUS")

			var names []string
			for name := range cfg.Gateway.Providers {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				p := cfg.Gateway.Providers[name]
				status := "no key"
				if cfg.HasProvider(name) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", name, p.DefaultModel, p.Priority, p.CostTier, status)
			}
			fmt.Fprintf(w, "mock\tmock-1\t-\t-\tready\n")

			return w.Flush()
		},
	}
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Show task categories, techniques, and trigger phrases",
		RunE: func(cmd *cobra.Command, args []string) error {
			triggers := classify.DefaultTriggers()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tTECHNIQUE\tTRIGGERS")
			for _, cat := range classify.Categories() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", cat, classify.TechniqueFor(cat), strings.Join(triggers[cat], ", "))
			}
			return w.Flush()
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithGatewayFile(configFile)
	}
	return config.Load()
}

func buildGateway() (*gateway.Gateway, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry, refiner, err := createProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create providers: %w", err)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := observe.NewLogger(os.Stderr, level)

	return gateway.New(cfg.Gateway, registry, refiner, logger)
}

// createProviders registers every provider with a configured key,
// falling back to the mock provider when no key is available. The
// refiner reuses the first ready provider for classification
// tie-breaking.
func createProviders(cfg *config.Config) (*provider.Registry, provider.Provider, error) {
	registry := provider.NewRegistry()
	var refiner provider.Provider

	var names []string
	for name := range cfg.Gateway.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Gateway.Providers[name]
		if !cfg.HasProvider(name) {
			continue
		}

		var (
			p   provider.Provider
			err error
		)
		switch name {
		case "anthropic":
			p, err = provider.NewAnthropic(cfg.AnthropicAPIKey)
		case "openai":
			p, err = provider.NewOpenAI(cfg.OpenAIAPIKey)
		case "google":
			p, err = provider.NewGoogle(cfg.GoogleAPIKey)
		case "deepseek":
			p, err = provider.NewDeepSeek(cfg.DeepSeekAPIKey)
		default:
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s provider: %w", name, err)
		}

		registry.Register(p, provider.Descriptor{
			Name:         name,
			DefaultModel: pc.DefaultModel,
			Strengths:    pc.Strengths,
			CostTier:     pc.CostTier,
			Priority:     pc.Priority,
			Timeout:      time.Duration(pc.TimeoutMs) * time.Millisecond,
		})
		if refiner == nil && cfg.Gateway.Classifier.RefinerProvider == name {
			refiner = p
		}
	}

	if len(registry.Names()) == 0 {
		mock := provider.NewMock("mock")
		registry.Register(mock, provider.Descriptor{
			Name:         "mock",
			DefaultModel: "mock-1",
			Priority:     1,
		})
	}

	return registry, refiner, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
