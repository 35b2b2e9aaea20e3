package render

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/chase3718/lou-lights/engine"
)

// FrameSink encodes every snapshot into one frame per strip and writes them
// to the strip controller. A strip whose spans did not change since the last
// successful write is skipped.
type FrameSink struct {
	w      io.Writer
	layout Layout
	logger *slog.Logger

	seq     byte
	last    [][]Span
	written atomic.Uint64
	frames  atomic.Uint64
}

func NewFrameSink(w io.Writer, layout Layout, logger *slog.Logger) *FrameSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameSink{
		w:      w,
		layout: layout,
		logger: logger,
		last:   make([][]Span, len(layout)),
	}
}

func (s *FrameSink) Render(snap engine.Snapshot) error {
	var errs []error
	for i, spans := range s.layout.Spans(snap) {
		if s.last[i] != nil && slices.Equal(s.last[i], spans) {
			continue
		}
		if err := s.send(Frame{Strip: byte(i), Seq: s.nextSeq(), Spans: spans}); err != nil {
			s.last[i] = nil
			errs = append(errs, fmt.Errorf("strip %q: %w", s.layout[i].Name, err))
			continue
		}
		s.last[i] = append(make([]Span, 0, len(spans)), spans...)
	}
	return errors.Join(errs...)
}

// Blank sends an empty frame to every strip.
func (s *FrameSink) Blank() error {
	var errs []error
	for i := range s.layout {
		s.last[i] = nil
		if err := s.send(EmptyFrame(byte(i), s.nextSeq())); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("render: strips blanked", "strips", len(s.layout))
	return errors.Join(errs...)
}

func (s *FrameSink) BytesWritten() uint64 { return s.written.Load() }
func (s *FrameSink) FramesWritten() uint64 { return s.frames.Load() }

func (s *FrameSink) nextSeq() byte {
	s.seq++
	return s.seq
}

func (s *FrameSink) send(f Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	n, err := s.w.Write(data)
	s.written.Add(uint64(n))
	if err != nil {
		return err
	}
	s.frames.Add(1)
	s.logger.Debug("render: frame sent", "strip", f.Strip, "seq", f.Seq, "spans", len(f.Spans), "bytes", n)
	return nil
}

// LogSink logs the lit notes whenever the set changes. Used for dry runs
// without a strip controller attached.
type LogSink struct {
	logger *slog.Logger
	prev   string
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Render(snap engine.Snapshot) error {
	names := make([]string, len(snap.Notes))
	for i, n := range snap.Notes {
		names[i] = n.ID().String()
	}
	lit := strings.Join(names, " ")
	if lit == s.prev {
		return nil
	}
	s.prev = lit
	s.logger.Debug("render: lit notes", "count", len(names), "notes", lit, "sustain", snap.Sustained)
	return nil
}

// Multi renders to every sink and joins their errors.
type Multi []engine.Sink

func (m Multi) Render(snap engine.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Render(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
