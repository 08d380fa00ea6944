package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak text through the configured speech service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx, false, false)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.initPortAudio(); err != nil {
			return err
		}
		out, err := a.startSpeech(ctx)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		if err := out.Speak(text); err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		if err := out.Drain(ctx); err != nil {
			return err
		}
		if st := out.Stats(); st.Failed > 0 {
			return fmt.Errorf("speech failed, see log")
		}
		return nil
	},
}
