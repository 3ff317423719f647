package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logPath    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "voxsh",
	Short: "voxsh - spoken and typed requests turned into validated, sandboxed shell scripts",
	Long: `voxsh turns a natural-language request into a shell script with a language
model, validates the script against a command whitelist and static analysis,
runs it in an isolated sandbox and explains the result back to you.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.voxsh/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "audit-log", "", "Path to audit log file (default: ~/.voxsh/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error (default from config)")
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
