// Package speech holds the capture and playback collaborators. Recognition
// and synthesis themselves are external; this package adapts a line-based
// text source and an external TTS command to the interfaces the pipeline
// drives.
package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrNoSpeech means capture finished without recognizing anything.
var ErrNoSpeech = errors.New("no speech detected")

// Listener yields one command per call. It returns ErrNoSpeech when nothing
// was recognized and io.EOF when the source is exhausted.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Speaker plays text and returns once playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// LineListener treats each line of r as a final transcript. It is the text
// stand-in for a microphone and recognizer.
type LineListener struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	// Prompt, when set, is called before each read.
	Prompt func()
}

func NewLineListener(r io.Reader) *LineListener {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 64*1024)
	return &LineListener{scanner: s}
}

func (l *LineListener) Listen(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.Prompt != nil {
		l.Prompt()
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	text := strings.TrimSpace(l.scanner.Text())
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// StaticListener returns Text once. An empty Text reports ErrNoSpeech.
type StaticListener struct {
	Text string
}

func (s StaticListener) Listen(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.Text) == "" {
		return "", ErrNoSpeech
	}
	return strings.TrimSpace(s.Text), nil
}

// CommandListener runs an external recognizer that captures one utterance
// and prints its transcript on stdout, e.g. a whisper.cpp wrapper.
type CommandListener struct {
	Argv []string
}

func (c CommandListener) Listen(ctx context.Context) (string, error) {
	if len(c.Argv) == 0 {
		return "", errors.New("no recognizer command configured")
	}
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", c.Argv[0], err, strings.TrimSpace(stderr.String()))
	}
	text := strings.Join(strings.Fields(string(out)), " ")
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// NewListener returns a CommandListener for argv, or nil when no recognizer
// is configured.
func NewListener(argv []string) Listener {
	if len(argv) == 0 {
		return nil
	}
	return CommandListener{Argv: argv}
}

// CommandSpeaker runs an external synthesizer with the text as its final
// argument, e.g. ["espeak"] or ["spd-say", "--wait"].
type CommandSpeaker struct {
	Argv []string
}

func (c CommandSpeaker) Speak(ctx context.Context, text string) error {
	if len(c.Argv) == 0 {
		return errors.New("no speech command configured")
	}
	args := append(append([]string{}, c.Argv[1:]...), text)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WriterSpeaker "speaks" by writing a line to W.
type WriterSpeaker struct {
	W      io.Writer
	Prefix string
}

func (w WriterSpeaker) Speak(ctx context.Context, text string) error {
	_, err := fmt.Fprintf(w.W, "%s%s\n", w.Prefix, text)
	return err
}

// Silent discards everything.
type Silent struct{}

func (Silent) Speak(context.Context, string) error { return nil }

// NewSpeaker returns a CommandSpeaker when argv is set, otherwise a
// WriterSpeaker on fallback (or Silent when fallback is nil).
func NewSpeaker(argv []string, fallback io.Writer) Speaker {
	if len(argv) > 0 {
		return CommandSpeaker{Argv: argv}
	}
	if fallback != nil {
		return WriterSpeaker{W: fallback, Prefix: "🔊 "}
	}
	return Silent{}
}
