package recorder

import (
	"reflect"
	"strings"
	"testing"

	"github.com/harsh-dexter/notera/internal/audio"
)

func TestDefaultSpec(t *testing.T) {
	format := audio.Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

	tests := []struct {
		goos   string
		device string
		binary string
		want   string
	}{
		{"linux", "", "arecord", "-q -D default -f S16_LE -c 1 -r 44100 -t raw"},
		{"linux", "hw:1,0", "arecord", "-q -D hw:1,0 -f S16_LE -c 1 -r 44100 -t raw"},
		{"darwin", "", "ffmpeg", "-hide_banner -loglevel error -f avfoundation -i :default -ac 1 -ar 44100 -f s16le -"},
		{"windows", "Microphone (USB)", "sox", "-q -t waveaudio Microphone (USB) -t raw -r 44100 -c 1 -b 16 -e signed-integer -"},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.device, func(t *testing.T) {
			spec, err := DefaultSpec(tt.goos, tt.device, format)
			if err != nil {
				t.Fatalf("DefaultSpec failed: %v", err)
			}
			if spec.Binary != tt.binary {
				t.Errorf("Expected binary %s, got %s", tt.binary, spec.Binary)
			}
			if got := strings.Join(spec.Args, " "); got != tt.want {
				t.Errorf("Unexpected args\n got: %s\nwant: %s", got, tt.want)
			}
			if spec.OutputFormat != OutputRaw {
				t.Errorf("Expected raw output, got %s", spec.OutputFormat)
			}
		})
	}

	if _, err := DefaultSpec("plan9", "", format); err == nil {
		t.Error("Expected error for a platform without a default recorder")
	}
}

func TestBuildSpecCustom(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

	spec, err := BuildSpec("linux", Options{
		Binary:       "parec",
		Args:         []string{"--device={device}", "--rate={rate}", "--channels={channels}", "--format=s16le"},
		Device:       "alsa_input.usb",
		OutputFormat: OutputWAV,
	}, format)
	if err != nil {
		t.Fatalf("BuildSpec failed: %v", err)
	}

	want := []string{"--device=alsa_input.usb", "--rate=16000", "--channels=1", "--format=s16le"}
	if !reflect.DeepEqual(spec.Args, want) {
		t.Errorf("Expected %v, got %v", want, spec.Args)
	}
	if spec.OutputFormat != OutputWAV {
		t.Errorf("Expected wav output, got %s", spec.OutputFormat)
	}
}

func TestBuildSpecBinaryOverride(t *testing.T) {
	spec, err := BuildSpec("windows", Options{Binary: `C:\tools\sox.exe`}, audio.DefaultFormat)
	if err != nil {
		t.Fatalf("BuildSpec failed: %v", err)
	}
	if spec.Binary != `C:\tools\sox.exe` {
		t.Errorf("Expected overridden binary, got %s", spec.Binary)
	}
	if len(spec.Args) == 0 || spec.Args[1] != "-t" {
		t.Errorf("Expected platform default args, got %v", spec.Args)
	}

	if _, err := BuildSpec("linux", Options{Args: []string{"-x"}}, audio.DefaultFormat); err == nil {
		t.Error("Expected error for args without binary")
	}
}
