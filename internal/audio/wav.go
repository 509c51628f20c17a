package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length of the canonical RIFF/WAVE PCM header.
const HeaderSize = 44

// WAVHeader mirrors the on-disk layout of a canonical PCM WAV header
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data length
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // data length
}

// Format describes the fixed PCM layout of a capture session.
type Format struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultFormat is what the recorder is asked to produce unless configured otherwise.
var DefaultFormat = Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

// BlockAlign returns the number of bytes in one sample frame
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate checks that the format is something the recorders can emit
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("unsupported channel count: %d (only mono or stereo is supported)", f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", f.BitsPerSample)
	}
	return nil
}

// EncodeHeader builds the 44-byte header for dataLength bytes of raw PCM.
// It never fails and depends only on its arguments.
func EncodeHeader(dataLength uint32, sampleRate uint32, channels uint16, bitsPerSample uint16) []byte {
	blockAlign := channels * bitsPerSample / 8
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLength,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLength,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	// Writes into a bytes.Buffer cannot fail for a fixed-size struct.
	_ = binary.Write(buf, binary.LittleEndian, header)
	return buf.Bytes()
}

// EncodeWAV prepends the canonical header to a raw PCM payload
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio payload")
	}

	if err := format.Validate(); err != nil {
		return nil, err
	}

	if len(pcm)%format.BlockAlign() != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of block align %d", len(pcm), format.BlockAlign())
	}

	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, EncodeHeader(uint32(len(pcm)), uint32(format.SampleRate), uint16(format.Channels), uint16(format.BitsPerSample))...)
	out = append(out, pcm...)

	return out, nil
}

// ValidateWAV validates a WAV file format without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}
	if header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid block align: 0")
	}

	numFrames := header.Subchunk2Size / uint32(header.BlockAlign)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numFrames) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumFrames:     numFrames,
	}, nil
}
