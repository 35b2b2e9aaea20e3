package render

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SOF0          = 0xAA
	SOF1          = 0x55
	CmdApplySpans = 0x20

	// MaxSpans keeps LEN within one byte.
	MaxSpans = 35

	headerSize = 3 // strip, seq, count
	spanSize   = 7 // start u16, end u16, r, g, b
)

var (
	ErrTooManySpans = errors.New("frame: too many spans")
	ErrBadFrame     = errors.New("frame: malformed")
)

// Frame is the full state of one strip. The controller clears the strip and
// paints every span in order.
type Frame struct {
	Strip byte
	Seq   byte
	Spans []Span
}

// EmptyFrame blanks a strip.
func EmptyFrame(strip, seq byte) Frame {
	return Frame{Strip: strip, Seq: seq}
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][strip][seq][count]{[start:2][end:2][r][g][b]}*[CKS]
//
// start and end are big-endian. LEN counts CMD plus payload; CKS is the XOR
// of LEN, CMD and every payload byte.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Spans) > MaxSpans {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySpans, len(f.Spans), MaxSpans)
	}
	payload := make([]byte, 0, headerSize+spanSize*len(f.Spans))
	payload = append(payload, f.Strip, f.Seq, byte(len(f.Spans)))
	for _, s := range f.Spans {
		if s.Start < 0 || s.End <= s.Start || s.End > maxStripLength {
			return nil, fmt.Errorf("frame: span [%d,%d) out of range", s.Start, s.End)
		}
		payload = binary.BigEndian.AppendUint16(payload, uint16(s.Start))
		payload = binary.BigEndian.AppendUint16(payload, uint16(s.End))
		payload = append(payload, s.Color.R, s.Color.G, s.Color.B)
	}

	length := byte(len(payload) + 1) // +1 for CMD byte
	out := make([]byte, 0, 5+len(payload))
	out = append(out, SOF0, SOF1, length, CmdApplySpans)
	out = append(out, payload...)
	out = append(out, checksum(length, CmdApplySpans, payload))
	return out, nil
}

// DecodeFrame parses exactly one encoded frame.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < 5+headerSize || b[0] != SOF0 || b[1] != SOF1 {
		return Frame{}, fmt.Errorf("%w: bad header", ErrBadFrame)
	}
	length, cmd := b[2], b[3]
	if cmd != CmdApplySpans {
		return Frame{}, fmt.Errorf("%w: unknown command 0x%02x", ErrBadFrame, cmd)
	}
	if int(length)+4 != len(b) {
		return Frame{}, fmt.Errorf("%w: length %d for %d bytes", ErrBadFrame, length, len(b))
	}
	payload := b[4 : len(b)-1]
	if got := checksum(length, cmd, payload); got != b[len(b)-1] {
		return Frame{}, fmt.Errorf("%w: checksum 0x%02x, want 0x%02x", ErrBadFrame, b[len(b)-1], got)
	}

	f := Frame{Strip: payload[0], Seq: payload[1]}
	count := int(payload[2])
	spans := payload[headerSize:]
	if len(spans) != count*spanSize {
		return Frame{}, fmt.Errorf("%w: %d spans in %d bytes", ErrBadFrame, count, len(spans))
	}
	for i := 0; i < count; i++ {
		s := spans[i*spanSize:]
		f.Spans = append(f.Spans, Span{
			Start: int(binary.BigEndian.Uint16(s[0:])),
			End:   int(binary.BigEndian.Uint16(s[2:])),
			Color: Color{s[4], s[5], s[6]},
		})
	}
	return f, nil
}

func checksum(length, cmd byte, payload []byte) byte {
	cks := length ^ cmd
	for _, b := range payload {
		cks ^= b
	}
	return cks
}
