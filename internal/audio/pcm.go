package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// PCMReader yields raw PCM from a recorder stream. When the stream starts
// with a RIFF/WAVE preamble the preamble is consumed up to and including the
// "data" sub-chunk header; anything else is passed through untouched.
type PCMReader struct {
	r        *bufio.Reader
	prepared bool
	err      error
}

// NewPCMReader wraps r
func NewPCMReader(r io.Reader) *PCMReader {
	return &PCMReader{r: bufio.NewReaderSize(r, 4096)}
}

func (p *PCMReader) Read(b []byte) (int, error) {
	if !p.prepared {
		p.prepared = true
		p.err = p.skipPreamble()
	}
	if p.err != nil {
		return 0, p.err
	}
	return p.r.Read(b)
}

func (p *PCMReader) skipPreamble() error {
	head, err := p.r.Peek(12)
	if err != nil {
		// Shorter than a RIFF preamble: let the caller see whatever is there.
		if err == io.EOF || err == bufio.ErrBufferFull {
			return nil
		}
		return err
	}
	if string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		return nil
	}
	if _, err := p.r.Discard(12); err != nil {
		return err
	}

	for {
		var sub [8]byte
		if _, err := io.ReadFull(p.r, sub[:]); err != nil {
			return fmt.Errorf("failed to read WAV sub-chunk header: %w", err)
		}
		size := binary.LittleEndian.Uint32(sub[4:8])
		if string(sub[0:4]) == "data" {
			return nil
		}
		// Sub-chunks are word aligned.
		skip := int64(size) + int64(size&1)
		if _, err := io.CopyN(io.Discard, p.r, skip); err != nil {
			return fmt.Errorf("failed to skip WAV sub-chunk %q: %w", string(sub[0:4]), err)
		}
	}
}
