package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "index", content: `{"input_device": 2}`, want: "2"},
		{name: "name", content: `{"input_device": " USB Microphone "}`, want: "USB Microphone"},
		{name: "null", content: `{"input_device": null}`, want: ""},
		{name: "missing key", content: `{"theme": "dark"}`, want: ""},
		{name: "negative index", content: `{"input_device": -1}`, wantErr: true},
		{name: "fractional index", content: `{"input_device": 1.5}`, wantErr: true},
		{name: "wrong type", content: `{"input_device": [1]}`, wantErr: true},
		{name: "malformed", content: `{"input_device": `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if got.InputDevice != tt.want {
				t.Fatalf("InputDevice = %q, want %q", got.InputDevice, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || got.InputDevice != "" {
		t.Fatalf("expected zero settings, got %+v (%v)", got, err)
	}
}
