//go:build !headless

// Package monitor plays the programmed PWM waveform on the sound card
package monitor

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/james-see/coilmidi/pkg/pwm"
)

// DefaultSampleRate of the monitor output
const DefaultSampleRate = 48000

// Monitor is a pwm.Channel that renders to the sound card
type Monitor struct {
	*pwm.Renderer

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
}

// Open starts audio output at sampleRate
func Open(sampleRate int) (*Monitor, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	<-ready

	m := &Monitor{Renderer: pwm.NewRenderer(sampleRate), ctx: ctx}
	m.player = ctx.NewPlayer(m.Renderer)
	m.player.Play()
	return m, nil
}

// Close stops playback
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.player == nil {
		return nil
	}
	err := m.player.Close()
	m.player = nil
	return err
}
