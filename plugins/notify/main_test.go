package main

import (
	"reflect"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	p := NotifyParams{Title: "Face check-in", Message: `Face "recognized"`, Level: "info"}

	tests := []struct {
		name    string
		goos    string
		cfg     Config
		want    []string
		wantErr bool
	}{
		{
			name: "darwin",
			goos: "darwin",
			want: []string{"osascript", "-e", `display notification "Face \"recognized\"" with title "Face check-in"`},
		},
		{
			name: "darwin with sound",
			goos: "darwin",
			cfg:  Config{Sound: "Glass"},
			want: []string{"osascript", "-e", `display notification "Face \"recognized\"" with title "Face check-in" sound name "Glass"`},
		},
		{
			name: "linux",
			goos: "linux",
			want: []string{"notify-send", "--app-name=facecheck", "--urgency=low", "Face check-in", `Face "recognized"`},
		},
		{
			name:    "unsupported",
			goos:    "plan9",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildCommand(tt.goos, p, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildCommand() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCommand_ErrorUrgency(t *testing.T) {
	got, _ := buildCommand("linux", NotifyParams{Title: "t", Message: "m", Level: "error"}, Config{})
	if got[2] != "--urgency=critical" {
		t.Errorf("urgency = %q, want critical", got[2])
	}
}
