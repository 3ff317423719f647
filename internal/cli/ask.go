package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <request...>",
	Short: "Run one request through the pipeline",
	Long: `Generate, validate, execute and explain a single request.

  voxsh ask list files in this folder
  voxsh ask "how much disk space is left?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: askCommand,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func askCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	detach := a.attachPrinter(os.Stdout)
	run, err := a.orch.Process(ctx, strings.Join(args, " "))
	detach()
	if err != nil {
		return err
	}
	return run.Err
}
