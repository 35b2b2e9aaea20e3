package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/chase3718/lou-lights/note"
)

const DefaultUDPAddr = "0.0.0.0:10000"

// controlOffset marks a control datagram: the first field carries the
// controller value plus this offset.
const controlOffset = 300

// UDPListener receives text datagrams from the companion bridge. Each
// datagram is "<a> <b>;" with an optional trailing semicolon:
//
//	"60 100;"  note 60 on at velocity 100 (velocity 0 is note off)
//	"427 64;"  controller 64 set to 127
type UDPListener struct {
	conn   net.PacketConn
	out    Enqueuer
	logger *slog.Logger

	received atomic.Uint64
	rejected atomic.Uint64
}

func ListenUDP(addr string, out Enqueuer, logger *slog.Logger) (*UDPListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	logger.Info("udp: listening", "addr", conn.LocalAddr().String())
	return &UDPListener{conn: conn, out: out, logger: logger}, nil
}

func (l *UDPListener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

func (l *UDPListener) Stats() (received, rejected uint64) {
	return l.received.Load(), l.rejected.Load()
}

// Serve reads datagrams until ctx is cancelled or the socket is closed.
func (l *UDPListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	buf := make([]byte, 512)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp: read: %w", err)
		}
		ev, err := ParseDatagram(buf[:n])
		if err != nil {
			l.rejected.Add(1)
			l.logger.Warn("udp: datagram rejected", "from", from.String(), "data", string(buf[:n]), "err", err)
			continue
		}
		l.received.Add(1)
		l.logger.Debug("udp: event", "from", from.String(), "event", ev)
		l.out.Enqueue(ev)
	}
}

func (l *UDPListener) Close() error { return l.conn.Close() }

// ParseDatagram decodes one datagram. When both fields fit in a byte it is
// a note message, otherwise a control message whose first field is the
// controller value offset by 300. Only the sustain controller is accepted.
func ParseDatagram(b []byte) (note.Event, error) {
	s := strings.TrimSuffix(strings.TrimSpace(string(b)), ";")
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return note.Event{}, fmt.Errorf("%w: want 2 fields, got %d", ErrMalformed, len(fields))
	}
	a, errA := strconv.ParseUint(fields[0], 10, 16)
	v, errB := strconv.ParseUint(fields[1], 10, 8)
	if errA != nil || errB != nil {
		return note.Event{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	if a <= 0xFF {
		id := note.ID(a)
		if !id.Playable() {
			return note.Event{}, fmt.Errorf("%w: note %d", ErrOutOfRange, a)
		}
		if v > note.MaxValue {
			return note.Event{}, fmt.Errorf("%w: velocity %d", ErrOutOfRange, v)
		}
		if v == 0 {
			return note.Off(id), nil
		}
		return note.On(id, uint8(v)), nil
	}

	if a < controlOffset || a > controlOffset+note.MaxValue {
		return note.Event{}, fmt.Errorf("%w: control value %d", ErrOutOfRange, a)
	}
	if v != note.SustainController {
		return note.Event{}, fmt.Errorf("%w: controller %d", ErrUnsupported, v)
	}
	return note.CC(uint8(v), uint8(a-controlOffset)), nil
}
