/*
Package main is the entry point for the domaincheck command-line application.

domaincheck looks up domains and prints a report block for each one:
  - WHOIS registration data, or whether the domain is available for registration.
  - The IPv4 address, its reverse DNS name and ip-api geolocation.
  - The key HTTP response headers and the TLS certificate validity window.

Domains come from the command line and/or a file (-f). Blocks are printed as they complete and,
with -o, appended to an output file that ends with an END_OF_RESULTS line so other processes
can tail it. Subcommands run the same pipeline behind an HTTP service (`serve`) and terminate a
running instance (`kill`).

Settings are layered through viper: defaults, an optional --config file, DOMAINCHECK_*
environment variables and finally flags. SIGINT and SIGTERM cancel the running batch; the
output file is still terminated with its sentinel line.
*/
package main

/*
domaincheck — WHOIS, DNS, geolocation and TLS lookups for lists of domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/x-stp/domaincheck/internal/client"
	"github.com/x-stp/domaincheck/internal/config"
	"github.com/x-stp/domaincheck/internal/core"
	"github.com/x-stp/domaincheck/internal/domains"
	"github.com/x-stp/domaincheck/internal/logging"
	"github.com/x-stp/domaincheck/internal/lookup"
	"github.com/x-stp/domaincheck/internal/metrics"
	"github.com/x-stp/domaincheck/internal/proc"
	"github.com/x-stp/domaincheck/internal/server"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var errNoDomains = errors.New("No domains provided.")

// Global flags (persistent across commands)
var (
	configFile  string
	logLevel    string
	logFormat   string
	metricsPort int
)

// Flags for the root (check) command
var (
	verbose    bool
	outputFile string
	inputFile  string
	limit      int
	basic      bool
)

// Flags for serve and kill
var (
	listenAddr string
	killAll    bool
)

var (
	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "domaincheck [domain...]",
	Short: "domaincheck - WHOIS, DNS, geolocation and TLS report for domains",
	Long: `Looks up each domain in order and prints a report block: registration data or
availability, IP address, reverse DNS, geolocation, HTTP headers and certificate dates.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = c
		if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
			return err
		}
		client.InitHTTPClient(&client.Config{RequestTimeout: cfg.Lookup.ProbeTimeout})
		if cfg.MetricsPort > 0 {
			metrics.EnableMetrics()
			if err := metrics.StartMetricsServer(fmt.Sprintf(":%d", cfg.MetricsPort)); err != nil {
				log.Warnf("Failed to start metrics server: %v", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metrics.ShutdownMetricsServer(ctx)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP upload and result streaming service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var killCmd = &cobra.Command{
	Use:   "kill [pattern]",
	Short: "Terminate a running domaincheck process",
	Long: `Terminates the first process whose command line contains pattern (default "domaincheck"),
or every matching process with --all. The current process is never matched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := proc.DefaultPattern
		if len(args) == 1 {
			pattern = args[0]
		}
		return runKill(cmd, pattern)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "domaincheck %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Persistent flags (available for all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().IntVar(&metricsPort, "metrics-port", 0, "Expose Prometheus metrics on this port (0 disables)")

	// Flags for the check command
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include status codes and extended details")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Append report blocks to this file, ending with END_OF_RESULTS")
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Read domains from this file, one per line")
	rootCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Check only the first N valid domains (0 for all)")
	rootCmd.Flags().BoolVar(&basic, "basic", false, "Skip the HTTP header and TLS certificate probes")

	// Flags for serve and kill
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":5000", "Address to listen on")
	killCmd.Flags().BoolVar(&killAll, "all", false, "Terminate every matching process, not just the first")

	mustBind("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBind("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	mustBind("metrics_port", rootCmd.PersistentFlags().Lookup("metrics-port"))
	mustBind("server.listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(versionCmd)
}

func mustBind(key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding %s: %v", key, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	list := append([]string(nil), args...)
	if inputFile != "" {
		fromFile, err := domains.ReadFile(inputFile)
		if err != nil {
			return err
		}
		list = append(list, fromFile...)
	}
	if len(list) == 0 {
		return errNoDomains
	}

	checker, err := lookup.NewChecker(cfg.LookupOptions(basic, false))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &core.Runner{Checker: checker, Out: cmd.OutOrStdout()}
	_, err = runner.Run(ctx, list, core.Options{
		Verbose:    verbose,
		OutputFile: outputFile,
		Limit:      limit,
	})
	switch {
	case errors.Is(err, core.ErrNoDomains):
		return errNoDomains
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

func runServe(cmd *cobra.Command) error {
	sc := cfg.Server
	checker, err := lookup.NewChecker(cfg.LookupOptions(false, sc.BlockPrivate))
	if err != nil {
		return err
	}

	// The service always exposes /metrics.
	metrics.EnableMetrics()

	srv := server.New(server.Config{
		UploadDir:      sc.UploadDir,
		ResultsFile:    sc.ResultsFile,
		PollInterval:   sc.PollInterval,
		MaxUploadBytes: sc.MaxUploadBytes,
	}, checker)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, sc.Listen)
}

func runKill(cmd *cobra.Command, pattern string) error {
	out := cmd.OutOrStdout()
	matches, err := proc.NewKiller().Kill(cmd.Context(), pattern, killAll)
	if errors.Is(err, proc.ErrNotFound) {
		fmt.Fprintln(out, "No running script found.")
		return nil
	}
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(out, "Killing process %d running %s\n", m.PID, pattern)
	}
	fmt.Fprintln(out, "Script terminated successfully.")
	return nil
}
