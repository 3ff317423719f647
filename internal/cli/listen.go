package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/voxsh/internal/speech"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Start a session that takes one request per line from stdin",
	Long: `Read requests from standard input, one per line, and run each through the
pipeline until end of input or Ctrl+C. An empty line counts as no speech.

With --speech, requests come from the recognizer configured as
speech.stt_command instead, one utterance per run, until Ctrl+C.

  voxsh listen
  printf 'list files\nshow disk usage\n' | voxsh listen
  voxsh listen --speech`,
	RunE: listenCommand,
}

var listenSpeech bool

func init() {
	listenCmd.Flags().BoolVar(&listenSpeech, "speech", false, "capture requests with speech.stt_command")
	rootCmd.AddCommand(listenCmd)
}

func listenCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	detach := a.attachPrinter(os.Stdout)
	defer detach()

	l, err := sessionListener(a.cfg.Speech.STTCommand, listenSpeech)
	if err != nil {
		return err
	}

	for {
		_, err := a.orch.Listen(ctx, l)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}

func sessionListener(stt []string, useSpeech bool) (speech.Listener, error) {
	if useSpeech {
		l := speech.NewListener(stt)
		if l == nil {
			return nil, errors.New("--speech needs speech.stt_command in the config file")
		}
		return l, nil
	}
	l := speech.NewLineListener(os.Stdin)
	if isTerminal(os.Stdin) {
		l.Prompt = func() { fmt.Fprint(os.Stderr, "voxsh> ") }
	}
	return l, nil
}
