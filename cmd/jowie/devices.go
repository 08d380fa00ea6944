package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/jowie/internal/settings"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices and show which one is selected",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(context.Background(), false, false)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.initPortAudio(); err != nil {
			return err
		}

		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		var defaultName string
		if dev, err := portaudio.DefaultInputDevice(); err == nil {
			defaultName = dev.Name
		}

		selector := strings.TrimSpace(a.cfg.Audio.InputDevice)
		if selector == "" && a.cfg.Audio.SettingsPath != "" {
			s, err := settings.Load(a.cfg.Audio.SettingsPath)
			if err != nil {
				return err
			}
			selector = s.InputDevice
		}
		printDevices(cmd.OutOrStdout(), devices, defaultName, selector, a.cfg.Audio.SampleRate)
		return nil
	},
}

// printDevices 只列出有输入声道的设备，标出默认设备和当前选择
func printDevices(w io.Writer, devices []*portaudio.DeviceInfo, defaultName, selector string, sampleRate int) {
	idx, byIndex := -1, false
	if n, err := strconv.Atoi(selector); err == nil {
		idx, byIndex = n, true
	}

	found := 0
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		found++

		var marks []string
		if dev.Name == defaultName {
			marks = append(marks, "default")
		}
		if (byIndex && i == idx) || (!byIndex && selector != "" && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(selector))) {
			marks = append(marks, "selected")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " [" + strings.Join(marks, ", ") + "]"
		}

		fmt.Fprintf(w, "[%d] %s%s\n", i, dev.Name, suffix)
		fmt.Fprintf(w, "    channels=%d rate=%.0fHz latency low=%.1fms high=%.1fms\n",
			dev.MaxInputChannels, dev.DefaultSampleRate,
			dev.DefaultLowInputLatency.Seconds()*1000, dev.DefaultHighInputLatency.Seconds()*1000)
		if sampleRate > 0 && int(dev.DefaultSampleRate) != sampleRate {
			fmt.Fprintf(w, "    note: device runs at %.0fHz, capture is configured for %dHz\n", dev.DefaultSampleRate, sampleRate)
		}
	}
	if found == 0 {
		fmt.Fprintln(w, "no input devices found")
	}
}
