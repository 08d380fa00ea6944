package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/dialogue"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/spf13/cobra"
)

var chatMute bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Type commands instead of speaking them",
	Long:  "Runs the same dialogue loop as listen, reading commands from stdin. /reset clears the conversation, /quit exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx, false, true)
		if err != nil {
			return err
		}
		defer a.close()
		return runChat(ctx, a, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatMute, "mute", false, "print replies without speaking them")
}

// printSpeaker 把播报内容打印出来，next 不为 nil 时同时朗读
type printSpeaker struct {
	w    io.Writer
	next dialogue.Speaker
}

func (p *printSpeaker) Speak(text string) error {
	fmt.Fprintf(p.w, "jowie: %s\n", text)
	if p.next == nil {
		return nil
	}
	return p.next.Speak(text)
}

func runChat(ctx context.Context, a *app, in io.Reader, w io.Writer) error {
	speaker := &printSpeaker{w: w}
	if !chatMute {
		if err := a.initPortAudio(); err != nil {
			return err
		}
		out, err := a.startSpeech(ctx)
		if err != nil {
			return err
		}
		speaker.next = out
	}

	j, err := a.openJournal()
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator(ctx, speaker, j)
	if err != nil {
		return err
	}
	orch.OnToolError(func(call chat.ToolCall, err error) {
		logging.Warnf("tool %s: %v", call.Name, err)
	})

	return chatLoop(ctx, orch, in, w)
}

type asker interface {
	Ask(ctx context.Context, input string) (*dialogue.TurnResult, error)
	Reset() error
}

func chatLoop(ctx context.Context, orch asker, in io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := orch.Reset(); err != nil {
				fmt.Fprintf(w, "reset failed: %v\n", err)
			} else {
				fmt.Fprintln(w, "conversation cleared")
			}
			continue
		}

		if _, err := orch.Ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, dialogue.ErrBackend) {
				fmt.Fprintf(w, "error: %v\n", err)
			}
		}
	}
}
