// Package cli implements the quickledger command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quickledger/quickledger/internal/daemon"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0-dev"

var (
	configPath string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "quickledger",
	Short: "Student finance and results ledger",
	Long: `QuickLedger keeps per-student fee ledgers, allocates payments across
outstanding fees, tracks registrations and computes GPA and CGPA.
Legacy spreadsheets can be staged and replayed with the import commands.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Storage directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".quickledger", "config.toml")
	}
	return "config.toml"
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// withDaemon opens the services for one command. Commands log warnings and
// errors only unless --log-level says otherwise.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if logLevel == "" {
		cfg.Log.Level = "warn"
	}
	ctx := cmd.Context()
	d, err := daemon.New(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

// ─── Output ─────────────────────────────────────────────────────────────────

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	return table
}

func title(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "\n"+format+"\n", args...)
}

func success(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}

func warn(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(w, format+"\n", args...)
}

func failure(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(w, format+"\n", args...)
}

func ids(v []int64) string {
	parts := make([]string, len(v))
	for i, id := range v {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "quickledger %s\n", Version)
	},
}
