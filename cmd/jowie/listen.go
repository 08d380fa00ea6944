package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/liuscraft/jowie/internal/audio/source"
	"github.com/liuscraft/jowie/internal/config"
	"github.com/liuscraft/jowie/internal/listener"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/liuscraft/jowie/internal/settings"
	"github.com/liuscraft/jowie/internal/vad"
	"github.com/liuscraft/jowie/internal/voicebot"
	"github.com/spf13/cobra"
)

const framesPerBuffer = 1024

const defaultGreeting = "Hello, I am Jowie. Please let me know if I can assist you with anything."

var (
	listenAck      string
	listenGreeting string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen on the microphone and answer spoken commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx, true, true)
		if err != nil {
			return err
		}
		defer a.close()
		return runListen(ctx, a)
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAck, "ack", "", "phrase spoken when a command is accepted, e.g. \"Yes?\"")
	listenCmd.Flags().StringVar(&listenGreeting, "greeting", defaultGreeting, "phrase spoken at startup, empty to stay quiet")
}

func runListen(ctx context.Context, a *app) error {
	cfg := a.cfg
	logging.Infof("Jowie starting (stt=%s, llm=%s, intent=%s)", cfg.STT.Provider, cfg.LLM.Model, cfg.Intent.Mode)

	gate, err := buildGate(cfg.Intent)
	if err != nil {
		return fmt.Errorf("intent gate: %w", err)
	}
	transcriber, err := buildTranscriber(cfg.STT)
	if err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}

	if err := a.initPortAudio(); err != nil {
		return err
	}
	src, err := newMicrophone(cfg)
	if err != nil {
		return err
	}

	out, err := a.startSpeech(ctx)
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator(ctx, out, j)
	if err != nil {
		return err
	}

	var detector vad.Detector
	if cfg.Listener.UseVAD {
		detector = vad.NewEnergyDetector(cfg.Listener.VADThreshold, cfg.Audio.SampleRate, cfg.Listener.VADFrameMs)
	}

	pipeline, err := voicebot.NewPipeline(voicebot.Config{
		FrameSamples:      cfg.Audio.SampleRate * cfg.Audio.FrameMs / 1000,
		UtteranceQueue:    cfg.Audio.UtteranceQueue,
		TranscribeTimeout: time.Duration(cfg.STT.TimeoutSeconds) * time.Second,
		Acknowledgement:   strings.TrimSpace(listenAck),
	}, voicebot.Components{
		Source:      src,
		Endpointer:  listener.NewEndpointer(listenerConfig(cfg), detector),
		Transcriber: transcriber,
		Gate:        gate,
		Dialogue:    orch,
		Speaker:     out,
	})
	if err != nil {
		return err
	}
	orch.OnToolError(pipeline.ToolFailed)

	events := pipeline.Events()
	events.Subscribe(voicebot.EventTypeTranscriptAccepted, func(e voicebot.Event) {
		fmt.Printf("you: %s\n", e.(*voicebot.TranscriptEvent).Text)
	})
	events.Subscribe(voicebot.EventTypeTurnFinished, func(e voicebot.Event) {
		if res := e.(*voicebot.TurnFinishedEvent).Result; res != nil {
			for _, r := range res.Replies {
				fmt.Printf("jowie: %s\n", r)
			}
		}
	})
	events.Subscribe(voicebot.EventTypeStateChanged, func(e voicebot.Event) {
		sc := e.(*voicebot.StateChangedEvent)
		logging.Debugf("state: %s -> %s", sc.OldState, sc.NewState)
	})

	if g := strings.TrimSpace(listenGreeting); g != "" {
		if err := out.Speak(g); err != nil {
			logging.Warnf("greeting not spoken: %v", err)
		}
	}
	fmt.Println("Listening. Press Ctrl+C to stop.")
	if err := pipeline.Run(ctx); err != nil {
		return err
	}
	logging.Infof("Jowie stopped")
	return nil
}

// newMicrophone 配置中未指定设备时使用 settings.json 中选择的设备
func newMicrophone(cfg *config.AppConfig) (*source.MicrophoneSource, error) {
	device := strings.TrimSpace(cfg.Audio.InputDevice)
	if device == "" && cfg.Audio.SettingsPath != "" {
		s, err := settings.Load(cfg.Audio.SettingsPath)
		if err != nil {
			return nil, err
		}
		device = s.InputDevice
	}

	queueBlocks := cfg.Audio.QueueSeconds * cfg.Audio.SampleRate / framesPerBuffer
	src, err := source.NewMicrophoneSource(source.MicrophoneConfig{
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: framesPerBuffer,
		Device:          device,
		QueueBlocks:     queueBlocks,
	})
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	return src, nil
}
