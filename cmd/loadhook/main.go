package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studiowebux/loadhook/internal/cli"
	"github.com/studiowebux/loadhook/internal/config"
	"github.com/studiowebux/loadhook/internal/logger"
	"github.com/studiowebux/loadhook/internal/oauth"
	"github.com/studiowebux/loadhook/internal/types"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadhook",
	Short: "HTTP load generator with scriptable request hooks",
	Long: `loadhook drives concurrent workers against an HTTP endpoint. Hooks run
before each request and after each response, so workers can carry state
from one iteration to the next.

Examples:
  loadhook run http://localhost:8080 -c 20 -d 30
  loadhook run http://localhost:8080 --pattern counter -n 1000
  loadhook run http://localhost:8080 --pattern auth --shared
  loadhook run -s auth.tengo --config run.yaml
  loadhook once http://localhost:8080 -s auth.tengo
  loadhook runs
  loadhook serve --addr localhost:8080`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Run a load test",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := prepare(cmd, args)
		if err != nil {
			return err
		}
		return cli.Run(context.Background(), cfg, cli.RunOptions{
			Hooks:        hookOptions(),
			DBPath:       ledgerPath(),
			MetricsAddr:  flagMetricsAddr,
			OutputFormat: flagOutput,
			Logger:       log,
		})
	},
}

var onceCmd = &cobra.Command{
	Use:   "once [url]",
	Short: "Run a single iteration and print the request and response",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := prepare(cmd, args)
		if err != nil {
			return err
		}
		return cli.Once(context.Background(), cfg, cli.OnceOptions{
			Hooks:  hookOptions(),
			Logger: log,
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [uuid]",
	Short: "List recorded runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if len(args) == 1 {
			return cli.ShowRun(ledgerPath(), args[0], flagOutput, os.Stdout)
		}
		return cli.ListRuns(ledgerPath(), flagLimit, os.Stdout)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <uuid>",
	Short: "Delete a recorded run and its iterations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return cli.DeleteRun(ledgerPath(), args[0], os.Stdout)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a target for trying hooks (/auth issues a token, /foo requires it)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(flagLogLevel, flagLogFormat)
		if err != nil {
			return err
		}
		return cli.Serve(context.Background(), cli.ServeOptions{
			ConfigFile: flagRoutes,
			Addr:       flagAddr,
			Token:      flagToken,
			Logger:     log,
		})
	},
}

// Flags shared by run and once
var (
	flagConfig       string
	flagRequestFile  string
	flagRequest      string
	flagVars         []string
	flagHeaders      []string
	flagScript       string
	flagModules      []string
	flagMaxAllocs    int64
	flagPattern      string
	flagCounterStart int
	flagCounterHdr   string
	flagTokenPath    string
	flagShared       bool
	flagOAuth        oauth.Config
)

var (
	flagDB          string
	flagNoDB        bool
	flagMetricsAddr string
	flagOutput      string
	flagLimit       int
	flagLogLevel    string
	flagLogFormat   string
)

// Flags for serve
var (
	flagRoutes string
	flagAddr   string
	flagToken  string
)

// configFlags maps config keys onto the flags that override them
var configFlags = map[string]string{
	"goroutines":      "goroutines",
	"duration":        "duration",
	"timeoutms":       "timeout",
	"iterations":      "iterations",
	"method":          "method",
	"host":            "host",
	"body":            "body",
	"redir":           "redir",
	"no_comp":         "no-c",
	"no_keepalive":    "no-ka",
	"skip_verify":     "no-vr",
	"client_cert":     "cert",
	"client_key":      "key",
	"ca_cert":         "ca",
	"http2":           "http2",
	"expected_status": "expected-status",
}

func addRunFlags(cmd *cobra.Command) {
	d := types.NewRunConfig()
	f := cmd.Flags()

	f.IntP("goroutines", "c", d.Goroutines, "Number of workers")
	f.IntP("duration", "d", d.Duration, "Run duration in seconds, 0 for no limit")
	f.IntP("timeout", "T", d.Timeoutms, "Request timeout in milliseconds")
	f.IntP("iterations", "n", 0, "Total iterations across workers, 0 for no limit")
	f.StringP("method", "M", d.Method, "HTTP method")
	f.String("host", "", "Host header override")
	f.String("body", "", "Request body, @file reads it from a file")
	f.Bool("redir", false, "Follow redirects")
	f.Bool("no-c", false, "Disable compression")
	f.Bool("no-ka", false, "Disable keep-alive")
	f.Bool("no-vr", false, "Skip TLS certificate verification")
	f.String("cert", "", "Client certificate file")
	f.String("key", "", "Client key file")
	f.String("ca", "", "CA certificate file")
	f.Bool("http2", d.HTTP2, "Allow HTTP/2")
	f.IntSlice("expected-status", nil, "Statuses counted as success (default 2xx)")
	f.StringArrayVarP(&flagHeaders, "header", "H", nil, "Request header (Name: value), can be repeated")

	f.StringVar(&flagConfig, "config", "", "Config file (yaml, json or jsonc)")
	f.StringVar(&flagRequestFile, "request-file", "", "Seed the request from a .http, yaml or json file")
	f.StringVar(&flagRequest, "request", "", "Request name or 1-based index in the request file")
	f.StringArrayVarP(&flagVars, "var", "e", nil, "Request file variable (key=value), can be repeated")

	f.StringVarP(&flagScript, "script", "s", "", "Hook script (tengo)")
	f.StringSliceVar(&flagModules, "module", nil, "Standard modules the script may import (default all but os)")
	f.Int64Var(&flagMaxAllocs, "max-allocs", 0, "Script allocation limit per hook, 0 for none")
	f.StringVar(&flagPattern, "pattern", "", "Built-in hooks: counter or auth")
	f.IntVar(&flagCounterStart, "counter-start", 0, "First value of the counter pattern")
	f.StringVar(&flagCounterHdr, "counter-header", "", "Header carrying the counter (default X-Counter)")
	f.StringVar(&flagTokenPath, "token-path", "", "Token rule for the auth pattern (header:<name> or body:<jmespath>)")
	f.BoolVar(&flagShared, "shared", false, "Share script state across workers")

	f.StringVar(&flagOAuth.TokenURL, "oauth-token-url", "", "Fetch a client credentials token before the run")
	f.StringVar(&flagOAuth.ClientID, "oauth-client-id", "", "OAuth client id")
	f.StringVar(&flagOAuth.ClientSecret, "oauth-client-secret", "", "OAuth client secret")
	f.StringVar(&flagOAuth.Scope, "oauth-scope", "", "OAuth scopes, space separated")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Run ledger database (default ~/.loadhook/loadhook.db)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format (text/json/yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", logger.FormatText, "Log format (text/json)")

	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&flagNoDB, "no-db", false, "Do not record the run")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	addRunFlags(onceCmd)

	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of runs to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	serveCmd.Flags().StringVar(&flagRoutes, "routes", "", "Routes file (yaml or json), built-in routes when empty")
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default localhost:8080)")
	serveCmd.Flags().StringVar(&flagToken, "token", "", "Token issued by /auth (random when empty)")

	runsCmd.AddCommand(runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

// prepare builds the logger and the effective run configuration
func prepare(cmd *cobra.Command, args []string) (types.RunConfig, *logrus.Logger, error) {
	log, err := logger.New(flagLogLevel, flagLogFormat)
	if err != nil {
		return types.RunConfig{}, nil, err
	}

	if err := config.Initialize(); err != nil {
		return types.RunConfig{}, nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	loader := config.NewLoader()
	for key, name := range configFlags {
		if err := loader.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return types.RunConfig{}, nil, err
		}
	}
	if flagRequestFile != "" {
		if err := cli.SeedFromFile(loader, flagRequestFile, flagRequest, flagVars); err != nil {
			return types.RunConfig{}, nil, err
		}
	}
	if len(args) == 1 {
		loader.Set("url", args[0])
	}

	cfg, err := loader.Load(flagConfig)
	if err != nil {
		return types.RunConfig{}, nil, err
	}

	for _, h := range flagHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return types.RunConfig{}, nil, fmt.Errorf("invalid header %q, expected Name: value", h)
		}
		cfg.Header[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	if rendered, err := config.Render(cfg); err == nil {
		log.Debugf("Effective config:\n%s", rendered)
	}
	return cfg, log, nil
}

func hookOptions() cli.HookOptions {
	return cli.HookOptions{
		Script:        flagScript,
		Modules:       flagModules,
		MaxAllocs:     flagMaxAllocs,
		Pattern:       flagPattern,
		CounterStart:  flagCounterStart,
		CounterHeader: flagCounterHdr,
		TokenPath:     flagTokenPath,
		Shared:        flagShared,
		OAuth:         flagOAuth,
	}
}

func ledgerPath() string {
	if flagNoDB {
		return ""
	}
	if flagDB != "" {
		return flagDB
	}
	return config.DatabasePath
}
