package audio

import (
	"fmt"
	"time"
)

// ChunkSizeBytes returns the payload length of one chunk of the given duration,
// rounded down to a whole sample frame.
func ChunkSizeBytes(format Format, duration time.Duration) (int, error) {
	if err := format.Validate(); err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("chunk duration must be positive, got %s", duration)
	}

	frames := int64(format.SampleRate) * int64(duration) / int64(time.Second)
	size := int(frames) * format.BlockAlign()
	if size == 0 {
		return 0, fmt.Errorf("chunk duration %s is shorter than one sample frame", duration)
	}
	return size, nil
}

// Slicer cuts a continuous PCM byte stream into fixed-size windows.
// Bytes leave in exactly the order they arrived. A Slicer is not safe for
// concurrent use; the session loop is its only caller.
type Slicer struct {
	chunkSize  int
	blockAlign int
	buf        []byte
}

// NewSlicer creates a slicer emitting chunks of chunkSize bytes. blockAlign
// is used by Flush to keep a short final chunk frame aligned.
func NewSlicer(chunkSize, blockAlign int) (*Slicer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if blockAlign <= 0 {
		blockAlign = 1
	}
	if chunkSize%blockAlign != 0 {
		return nil, fmt.Errorf("chunk size %d is not a multiple of block align %d", chunkSize, blockAlign)
	}
	return &Slicer{
		chunkSize:  chunkSize,
		blockAlign: blockAlign,
		buf:        make([]byte, 0, chunkSize*2),
	}, nil
}

// ChunkSize returns the configured chunk length in bytes
func (s *Slicer) ChunkSize() int {
	return s.chunkSize
}

// Feed appends p and returns every complete chunk now available, oldest first.
// The returned slices are owned by the caller.
func (s *Slicer) Feed(p []byte) [][]byte {
	s.buf = append(s.buf, p...)
	if len(s.buf) < s.chunkSize {
		return nil
	}

	chunks := make([][]byte, 0, len(s.buf)/s.chunkSize)
	offset := 0
	for len(s.buf)-offset >= s.chunkSize {
		chunk := make([]byte, s.chunkSize)
		copy(chunk, s.buf[offset:offset+s.chunkSize])
		chunks = append(chunks, chunk)
		offset += s.chunkSize
	}

	remaining := copy(s.buf, s.buf[offset:])
	s.buf = s.buf[:remaining]

	return chunks
}

// Pending reports how many bytes are buffered towards the next chunk
func (s *Slicer) Pending() int {
	return len(s.buf)
}

// Flush returns the frame-aligned remainder (nil if there is none) and empties
// the slicer. A trailing partial frame is dropped.
func (s *Slicer) Flush() []byte {
	n := len(s.buf) - len(s.buf)%s.blockAlign
	var out []byte
	if n > 0 {
		out = make([]byte, n)
		copy(out, s.buf[:n])
	}
	s.buf = s.buf[:0]
	return out
}

// Reset discards anything buffered
func (s *Slicer) Reset() {
	s.buf = s.buf[:0]
}
