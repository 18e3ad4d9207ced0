// Package cli implements the jingzi command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webjingzi/mirror/internal/alias"
	"github.com/webjingzi/mirror/internal/auth"
	"github.com/webjingzi/mirror/internal/config"
	"github.com/webjingzi/mirror/internal/dialer"
	"github.com/webjingzi/mirror/internal/forward"
	"github.com/webjingzi/mirror/internal/log"
	"github.com/webjingzi/mirror/internal/proxy"
	"github.com/webjingzi/mirror/internal/tokenstore"
)

var (
	verbose    bool
	jsonOut    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "jingzi [config file]",
	Short: "web-jingzi - a domain-rewriting HTTP reverse proxy",
	Long: `web-jingzi serves a user-facing mirror of remote sites under
locally-chosen host names, rewriting alias<->real domain occurrences
across URLs, headers, and bodies as it proxies each request.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit stderr logs as JSON")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config file (overrides the positional argument)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func resolveConfigPath(args []string) string {
	if configPath != "" {
		return configPath
	}
	if len(args) > 0 {
		return args[0]
	}
	if env := os.Getenv("CONFIG_FILE"); env != "" {
		return env
	}
	return "config.yaml"
}

func runServe(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath(args)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := log.Init(log.Options{
		Verbose:       verbose || cfg.Log.Verbose,
		JSONFormat:    jsonOut || cfg.Log.JSON,
		DebugDir:      cfg.Log.Dir,
		RetentionDays: cfg.Log.RetentionDays,
	}); err != nil {
		cmd.PrintErrf("warning: failed to initialize debug logging: %v\n", err)
	}
	defer log.Close()

	entries, err := cfg.AliasEntries()
	if err != nil {
		return err
	}
	table, err := alias.Build(entries)
	if err != nil {
		return fmt.Errorf("building alias table: %w", err)
	}

	store, err := tokenstore.OpenSQLiteStore(cfg.DataDir + "/tokens.sqlite")
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}
	defer store.Close()

	var accounts []auth.Account
	for _, a := range cfg.Authorization.Account {
		accounts = append(accounts, auth.Account{Username: a.Username, Password: a.Password})
	}
	authorizer := auth.New(cfg.Authorization.Enabled, cfg.Authorization.DomainList, accounts, store)
	if err := authorizer.Validate(); err != nil {
		return err
	}

	d := dialer.New(cfg.ConnectTimeout(), cfg.Upstream.Socks5Address)
	pipeline := forward.New(table, authorizer, cfg.UseHTTPS, d, cfg.RequestTimeout())

	server := proxy.NewServer(pipeline)
	if err := server.SetListenAddress(cfg.ListenAddress); err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	log.Info("jingzi: listening", "addr", server.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("jingzi: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout())
	defer cancel()
	return server.Stop(shutdownCtx)
}
