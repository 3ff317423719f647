package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/voxsh/internal/speech"
	"github.com/gzhole/voxsh/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal interface",
	RunE:  tuiCommand,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func tuiCommand(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdin) {
		return errNotInteractive
	}

	ctx := cmd.Context()
	// The UI owns the screen; diagnostics reach only the journal, if any.
	a, err := newApp(ctx, io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(ctx, a.orch, speech.NewListener(a.cfg.Speech.STTCommand))
}
