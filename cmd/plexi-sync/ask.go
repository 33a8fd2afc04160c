package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plexi-bot/plexi/internal/chat"
	"github.com/plexi-bot/plexi/internal/storage"
)

var askAPIKey string

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Chat with Plexi about the indexed materials",
	Long: `Opens a terminal chat session over the persisted index.

The language-model API key is asked for once per session (or passed with
--api-key) and is never stored. Type "exit" to leave.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askAPIKey, "api-key", "", "language-model API key (prompted when empty)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	closeIndex := func() {}
	defer func() { closeIndex() }()
	index := chat.NewSharedIndex(func(ctx context.Context) (storage.Index, error) {
		idx, closeFn, err := openIndex(ctx, cfg, embedder.Model())
		if err != nil {
			return nil, err
		}
		closeIndex = closeFn
		return idx, nil
	})

	session := chat.Create(chat.Deps{
		Index:    index,
		Embedder: embedder,
		Backends: chat.NewOpenAIBackendFactory(cfg.Chat.BaseURL, cfg.Chat.Model),
		Logger:   logger,
	}, chat.Options{TopK: cfg.Chat.TopK, TokenLimit: cfg.Chat.TokenLimit})
	defer session.Close()

	return chatLoop(ctx, session, askAPIKey, os.Stdin, os.Stdout)
}

// chatLoop runs a session against line-oriented input until EOF or "exit".
func chatLoop(ctx context.Context, session *chat.Session, apiKey string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	fmt.Fprintln(out, session.Greeting())

	for session.State() == chat.StateAwaitingKey {
		if apiKey == "" {
			var ok bool
			if apiKey, ok = readLine("API key: "); !ok {
				return scanner.Err()
			}
		}
		err := session.SetAPIKey(ctx, apiKey)
		apiKey = ""
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrMissingCredential):
			fmt.Fprintln(out, "Please enter your API key to start chatting.")
		default:
			return err
		}
	}

	for {
		line, ok := readLine("> ")
		if !ok {
			return scanner.Err()
		}
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := session.Submit(ctx, line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var backendErr *chat.BackendError
		switch {
		case err == nil:
			fmt.Fprintln(out, reply)
		case errors.As(err, &backendErr) && backendErr.Unauthorized():
			fmt.Fprintln(out, "The language model rejected your API key.")
		case errors.As(err, &backendErr):
			fmt.Fprintf(out, "Sorry, I couldn't answer that (%v). Please try again.\n", backendErr)
		default:
			return err
		}
	}
}
