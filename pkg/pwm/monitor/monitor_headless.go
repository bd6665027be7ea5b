//go:build headless

package monitor

import (
	"errors"

	"github.com/james-see/coilmidi/pkg/pwm"
)

// DefaultSampleRate of the monitor output
const DefaultSampleRate = 48000

// ErrUnavailable is returned by Open in headless builds
var ErrUnavailable = errors.New("audio monitor not built in (headless)")

// Monitor is unavailable without an audio backend
type Monitor struct {
	*pwm.Renderer
}

// Open always fails in headless builds
func Open(sampleRate int) (*Monitor, error) {
	return nil, ErrUnavailable
}

// Close does nothing
func (m *Monitor) Close() error { return nil }
