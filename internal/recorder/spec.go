package recorder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harsh-dexter/notera/internal/audio"
)

// Output formats a recorder can write to stdout
const (
	OutputRaw = "raw"
	OutputWAV = "wav"
)

// Spec is a fully resolved recorder command line
type Spec struct {
	Binary       string
	Args         []string
	OutputFormat string
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Binary + " " + strings.Join(s.Args, " "))
}

// Options are the user-facing recorder settings
type Options struct {
	Binary       string
	Args         []string
	Device       string
	OutputFormat string
}

// BuildSpec resolves the recorder command for goos. A custom binary without
// arguments keeps the platform default arguments. Custom arguments may use the
// placeholders {device}, {rate} and {channels}.
func BuildSpec(goos string, opts Options, format audio.Format) (Spec, error) {
	if err := format.Validate(); err != nil {
		return Spec{}, err
	}

	outputFormat := opts.OutputFormat
	if outputFormat == "" {
		outputFormat = OutputRaw
	}

	if len(opts.Args) > 0 {
		if opts.Binary == "" {
			return Spec{}, fmt.Errorf("recorder args require an explicit binary")
		}
		args := make([]string, len(opts.Args))
		replacer := strings.NewReplacer(
			"{device}", deviceOrDefault(opts.Device),
			"{rate}", strconv.Itoa(format.SampleRate),
			"{channels}", strconv.Itoa(format.Channels),
		)
		for i, arg := range opts.Args {
			args[i] = replacer.Replace(arg)
		}
		return Spec{Binary: opts.Binary, Args: args, OutputFormat: outputFormat}, nil
	}

	spec, err := DefaultSpec(goos, opts.Device, format)
	if err != nil {
		return Spec{}, err
	}
	if opts.Binary != "" {
		spec.Binary = opts.Binary
	}
	return spec, nil
}

// DefaultSpec returns the stock recorder for goos: arecord on Linux, ffmpeg
// with AVFoundation on macOS and SoX with waveaudio on Windows. All of them
// write headerless signed 16-bit little-endian PCM to stdout.
func DefaultSpec(goos, device string, format audio.Format) (Spec, error) {
	rate := strconv.Itoa(format.SampleRate)
	channels := strconv.Itoa(format.Channels)
	device = deviceOrDefault(device)

	switch goos {
	case "linux":
		return Spec{
			Binary:       "arecord",
			Args:         []string{"-q", "-D", device, "-f", "S16_LE", "-c", channels, "-r", rate, "-t", "raw"},
			OutputFormat: OutputRaw,
		}, nil
	case "darwin":
		return Spec{
			Binary: "ffmpeg",
			Args: []string{
				"-hide_banner", "-loglevel", "error",
				"-f", "avfoundation", "-i", ":" + device,
				"-ac", channels, "-ar", rate,
				"-f", "s16le", "-",
			},
			OutputFormat: OutputRaw,
		}, nil
	case "windows":
		return Spec{
			Binary: "sox",
			Args: []string{
				"-q", "-t", "waveaudio", device,
				"-t", "raw", "-r", rate, "-c", channels, "-b", "16", "-e", "signed-integer", "-",
			},
			OutputFormat: OutputRaw,
		}, nil
	default:
		return Spec{}, fmt.Errorf("no default recorder for %s; set recorder.binary and recorder.args", goos)
	}
}

func deviceOrDefault(device string) string {
	if device != "" {
		return device
	}
	return "default"
}
