package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/intent"
	"github.com/liuscraft/jowie/internal/stt"
	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a WAV file and report whether the intent gate accepts it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := setup(ctx, true, false)
		if err != nil {
			return err
		}
		defer a.close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		tr, err := buildTranscriber(a.cfg.STT)
		if err != nil {
			return err
		}
		gate, err := buildGate(a.cfg.Intent)
		if err != nil {
			return err
		}
		return transcribeWAV(ctx, cmd.OutOrStdout(), data, a.cfg.Audio.SampleRate, tr, gate)
	},
}

// transcribeWAV 解码、下混并重采样到采集采样率，走与麦克风相同的转写和意图判断
func transcribeWAV(ctx context.Context, w io.Writer, data []byte, rate int, tr stt.Transcriber, gate intent.Matcher) error {
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return err
	}
	samples, err := audio.NewLinearResampler().Resample(clip.Mono(), clip.SampleRate, rate, 1)
	if err != nil {
		return err
	}

	start := time.Now()
	text, err := tr.Transcribe(ctx, samples, rate)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	verdict := "ignored"
	if gate.Matches(text) {
		verdict = "accepted"
	}
	fmt.Fprintf(w, "%q (%s, %.1fs audio, %v)\n", text, verdict, clip.Duration(), time.Since(start).Round(time.Millisecond))
	return nil
}
