package pwm

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

const (
	SOF0         = 0xAA
	SOF1         = 0x55
	CmdConfigure = 0x20
	CmdSilence   = 0x21
)

// Channel ids on the board
const (
	ChannelTransmit byte = 0
	ChannelStatus   byte = 1
)

// EncodeFrame builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD plus payload, CKS is the XOR of LEN, CMD and the payload.
func EncodeFrame(cmd byte, payload []byte) []byte {
	length := byte(len(payload) + 1)
	cks := length ^ cmd
	for _, b := range payload {
		cks ^= b
	}

	out := make([]byte, 0, len(payload)+5)
	out = append(out, SOF0, SOF1, length, cmd)
	out = append(out, payload...)
	return append(out, cks)
}

// configurePayload is [channel][div int][div frac][wrap hi][wrap lo][level hi][level lo]
func configurePayload(ch byte, p TimerParams) []byte {
	return []byte{
		ch,
		byte(p.DividerInt()), byte(p.DividerFrac()),
		byte(p.Wrap >> 8), byte(p.Wrap),
		byte(p.Level >> 8), byte(p.Level),
	}
}

// FrameLink forwards register updates to the board over a serial line
type FrameLink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	logger *slog.Logger
}

// OpenFrameLink opens the named serial device at baud
func OpenFrameLink(name string, baud int, logger *slog.Logger) (*FrameLink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return NewFrameLink(p, logger), nil
}

// NewFrameLink writes frames to w
func NewFrameLink(w io.WriteCloser, logger *slog.Logger) *FrameLink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameLink{w: w, logger: logger}
}

// Channel returns the output with the given board channel id
func (l *FrameLink) Channel(id byte) Channel {
	return &linkChannel{link: l, id: id}
}

func (l *FrameLink) send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close closes the underlying port
func (l *FrameLink) Close() error {
	l.logger.Info("serial: closing port")
	return l.w.Close()
}

type linkChannel struct {
	link *FrameLink
	id   byte
}

func (c *linkChannel) Configure(p TimerParams) error {
	return c.link.send(EncodeFrame(CmdConfigure, configurePayload(c.id, p)))
}

func (c *linkChannel) Silence() error {
	return c.link.send(EncodeFrame(CmdSilence, []byte{c.id}))
}
