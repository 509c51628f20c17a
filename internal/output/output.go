package output

import (
	"fmt"
	"io"
	"time"

	"github.com/harsh-dexter/notera/internal/ledger"
	"github.com/harsh-dexter/notera/internal/recorder"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(sessionID, dir string) {
	fmt.Fprintf(f.w, "🎙️  Recording live meeting %s\n", sessionID)
	fmt.Fprintf(f.w, "   Chunks: %s\n", dir)
	fmt.Fprintf(f.w, "   Press Ctrl+C to stop\n")
}

func (f *Formatter) RecordingStopped(duration time.Duration, chunks int) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s, %d chunks)\n", formatDuration(duration), chunks)
}

func (f *Formatter) RecordingFailed(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Draining(inFlight int) {
	fmt.Fprintf(f.w, "⏳ Waiting for %d background uploads...\n", inFlight)
}

func (f *Formatter) Serving(addr string) {
	fmt.Fprintf(f.w, "🌐 Control API listening on http://%s\n", addr)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) DeviceList(devices []recorder.Device) {
	if len(devices) == 0 {
		f.Info("No capture devices found")
		return
	}
	fmt.Fprintf(f.w, "🎧 Capture devices:\n\n")
	for _, d := range devices {
		fmt.Fprintf(f.w, "  %-24s %s\n", d.ID, d.Name)
	}
}

func (f *Formatter) SessionListHeader() {
	fmt.Fprintf(f.w, "📁 Sessions:\n\n")
}

func (f *Formatter) SessionListItem(s ledger.SessionSummary) {
	status := " ⏺️"
	switch {
	case s.EndedAt == nil:
	case s.Failed > 0 || s.FinalizeStatus == ledger.StatusFailed:
		status = " ⚠️"
	case s.Pending > 0:
		status = " ⏳"
	default:
		status = " ✅"
	}

	duration := "recording"
	if s.EndedAt != nil {
		duration = formatDuration(s.EndedAt.Sub(s.StartedAt))
	}

	fmt.Fprintf(f.w, "  %s  %s  %-10s %d chunks (%d uploaded, %d failed)%s\n",
		s.StartedAt.Local().Format("2006-01-02 15:04"), s.ID, duration,
		s.Chunks, s.Uploaded, s.Failed, status)
}

func (f *Formatter) ChunkListItem(c ledger.Chunk) {
	mark := "⏳"
	switch c.UploadStatus {
	case ledger.StatusUploaded:
		mark = "✅"
	case ledger.StatusFailed:
		mark = "❌"
	}
	fmt.Fprintf(f.w, "  %s %5d  %8d bytes  %s\n", mark, c.Index, c.SizeBytes, c.FilePath)
	if c.UploadError != "" {
		fmt.Fprintf(f.w, "           %s\n", c.UploadError)
	}
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
