// root.go wires the ort command: flags, config, conversation handling,
// and the streaming output loop.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/grahamking/ort/internal/config"
	"github.com/grahamking/ort/internal/conversation"
	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/metrics"
	"github.com/grahamking/ort/pkg/openrouter"
	"github.com/grahamking/ort/pkg/version"
)

type flags struct {
	model      string
	system     string
	configPath string
	noStream   bool
	stats      bool
	resume     bool
	verbose    bool
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "ort [flags] <prompt>",
		Short: "Send a prompt to OpenRouter and stream the reply",
		Long: `ort sends a prompt to the OpenRouter chat-completions API over its own
TLS 1.3 client and streams the reply to the terminal.

The connection trusts the server on first connect: certificates are NOT
verified. Do not use ort where man-in-the-middle resistance matters.`,
		Version:       version.String(),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), f, args)
		},
	}

	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model identifier (overrides config)")
	cmd.Flags().StringVarP(&f.system, "system", "s", "", "system prompt (overrides config)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "config file path")
	cmd.Flags().BoolVar(&f.noStream, "no-stream", false, "wait for the full reply instead of streaming")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print timing and cost statistics")
	cmd.Flags().BoolVarP(&f.resume, "continue", "c", false, "continue the latest conversation")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	vt := version.Full() + "\n"
	if gitCommit != "unknown" {
		vt += "commit " + gitCommit + "\n"
	}
	if buildTime != "unknown" {
		vt += "built " + buildTime + "\n"
	}
	cmd.SetVersionTemplate(vt)
	return cmd
}

func run(ctx context.Context, f *flags, args []string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("no API key: set api_key in the config file or OPENROUTER_API_KEY")
	}

	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	model := cfg.Model
	if f.model != "" {
		model = f.model
	}
	system := cfg.System
	if f.system != "" {
		system = f.system
	}

	log, err := metrics.NewLogger(f.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync failure is uninteresting

	stateDir, err := config.StateDir()
	if err != nil {
		return err
	}
	store, err := conversation.NewStore(stateDir)
	if err != nil {
		return err
	}

	conv, err := resolveConversation(store, f.resume, model)
	if err != nil {
		return err
	}
	conv.Append("user", prompt)

	messages := conv.Messages
	if system != "" {
		messages = append([]openrouter.Message{{Role: "system", Content: system}}, messages...)
	}

	// Ctrl-C stops the stream cleanly: close_notify, TCP close, then the
	// partial reply is still saved.
	interrupted := &atomic.Bool{}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		interrupted.Store(true)
	}()

	client := openrouter.New(openrouter.Options{
		Host:    cfg.Host,
		Addrs:   cfg.Addrs,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout(),
		Logger:  log,
	})

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTTY {
		color.NoColor = true
	}

	var reply strings.Builder
	sink := func(delta string) error {
		reply.WriteString(delta)
		_, err := io.WriteString(os.Stdout, delta)
		return err
	}

	req := openrouter.ChatRequest{
		Model:        model,
		Messages:     messages,
		Stream:       !f.noStream,
		UsageInclude: true,
	}
	stats, chatErr := client.Chat(ctx, req, sink, func() bool {
		return !interrupted.Load()
	})

	if reply.Len() > 0 {
		if isTTY && !strings.HasSuffix(reply.String(), "\n") {
			fmt.Println()
		}
		conv.Append("assistant", reply.String())
		if err := store.Save(conv); err != nil {
			log.Warn("could not save conversation: " + err.Error())
		}
	}

	if f.stats && stats != nil {
		printStats(stats)
	}
	if qerrors.Is(chatErr, qerrors.ErrStreamCancelled) {
		// The user interrupted; the partial reply is already saved.
		return nil
	}
	return chatErr
}

// resolveConversation picks up the latest conversation with --continue,
// otherwise starts fresh.
func resolveConversation(store *conversation.Store, cont bool, model string) (*conversation.Conversation, error) {
	if cont {
		conv, err := store.Latest()
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
		// Nothing to continue; fall through to a new conversation.
	}
	return store.New(model), nil
}

// readPrompt joins command arguments, or reads stdin when no arguments
// were given (so `echo q | ort` works).
func readPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no prompt: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt on stdin")
	}
	return prompt, nil
}

// printStats writes the one-line-per-metric summary to stderr so it never
// mixes with the reply on stdout.
func printStats(s *metrics.RequestStats) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	fmt.Fprintln(os.Stderr)
	bold.Fprintln(os.Stderr, "-- stats --")
	fmt.Fprintf(os.Stderr, "handshake      %s\n", s.Connection.HandshakeTime.Round(time.Millisecond))
	if s.FirstToken > 0 {
		fmt.Fprintf(os.Stderr, "first token    %s\n", s.FirstToken.Round(time.Millisecond))
	}
	fmt.Fprintf(os.Stderr, "total          %s\n", s.Total.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "traffic        %s in / %s out\n",
		humanize.Bytes(s.Connection.BytesIn), humanize.Bytes(s.Connection.BytesOut))
	if s.PromptTokens > 0 || s.CompletionTokens > 0 {
		fmt.Fprintf(os.Stderr, "tokens         %d prompt + %d completion\n", s.PromptTokens, s.CompletionTokens)
	}
	if s.Cost > 0 {
		fmt.Fprintf(os.Stderr, "cost           $%.6f\n", s.Cost)
	}
	if s.Events > 0 {
		dim.Fprintf(os.Stderr, "%d stream events\n", s.Events)
	}
}
