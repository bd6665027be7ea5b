// Package main is the entry point for the coilmidi CLI
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/james-see/coilmidi/pkg/api"
	"github.com/james-see/coilmidi/pkg/config"
	"github.com/james-see/coilmidi/pkg/midifile"
	"github.com/james-see/coilmidi/pkg/player"
	"github.com/james-see/coilmidi/pkg/pwm"
	"github.com/james-see/coilmidi/pkg/pwm/monitor"
	"github.com/james-see/coilmidi/pkg/sequencer"
	"github.com/james-see/coilmidi/pkg/storage"
	"github.com/james-see/coilmidi/pkg/tone"
	"github.com/james-see/coilmidi/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	profilePath string
	logLevel    string
	logJSON     bool

	outputFile string
	serverPort int
	verify     bool
	useMonitor bool
	serialPort string
)

// logger is the CLI logger; initLogger replaces it before any command runs
var logger = slog.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coilmidi",
	Short: "Play MIDI files on a Tesla coil interrupter",
	Long: `coilmidi reads Standard MIDI Files and drives a Tesla coil interrupter's
PWM output, one note at a time, within the coil's safe duty limits.

Examples:
  coilmidi play ./songs tetris.mid --serial /dev/ttyACM0
  coilmidi info tetris.mid --verify
  coilmidi tone 69 100
  coilmidi manual 4095 2048
  coilmidi gen -o demo.mid
  coilmidi tui ./songs
  coilmidi serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(logLevel, logJSON)
	},
	SilenceUsage: true,
}

var playCmd = &cobra.Command{
	Use:   "play <dir> <file>",
	Short: "Play a file from a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlay,
}

var infoCmd = &cobra.Command{
	Use:   "info <file.mid>",
	Short: "Show how the player reads a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var toneCmd = &cobra.Command{
	Use:   "tone <note> [velocity]",
	Short: "Show the output for a note",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTone,
}

var manualCmd = &cobra.Command{
	Use:   "manual <frequency 0-4095> <duty 0-4095>",
	Short: "Show the output for raw manual readings",
	Args:  cobra.ExactArgs(2),
	RunE:  runManual,
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Write a demo MIDI file",
	Args:  cobra.NoArgs,
	RunE:  runGen,
}

var filesCmd = &cobra.Command{
	Use:   "files <dir>",
	Short: "List the files the player would offer",
	Args:  cobra.ExactArgs(1),
	RunE:  runFiles,
}

var tuiCmd = &cobra.Command{
	Use:   "tui <dir>",
	Short: "Launch the interactive control panel",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analyzer API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "Hardware profile (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")

	// Output backends
	for _, c := range []*cobra.Command{playCmd, tuiCmd} {
		c.Flags().BoolVar(&useMonitor, "monitor", false, "Play the output on the sound card")
		c.Flags().StringVar(&serialPort, "serial", "", "Serial device of the board (overrides the profile)")
	}

	infoCmd.Flags().BoolVar(&verify, "verify", false, "Cross-check with the gomidi reader")
	genCmd.Flags().StringVarP(&outputFile, "output", "o", "demo.mid", "Output .mid file path")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	rootCmd.AddCommand(playCmd, infoCmd, toneCmd, manualCmd, genCmd, filesCmd, tuiCmd, serveCmd)
}

// initLogger configures the shared slog logger and calls slog.SetDefault so
// library packages log through the same handler
func initLogger(level string, asJSON bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
	return nil
}

func loadProfile() (*config.Profile, error) {
	p, err := config.Load(profilePath)
	if err != nil {
		return nil, err
	}
	if serialPort != "" {
		p.Serial.Port = serialPort
	}
	return p, nil
}

// outputs builds the transmit and status channels for the profile
func outputs(p *config.Profile) (tx, status pwm.Channel, closeAll func(), err error) {
	txs := []pwm.Channel{pwm.NewRecorder(0)}
	statuses := []pwm.Channel{pwm.NewRecorder(0)}
	var closers []func() error

	if p.Serial.Port != "" {
		link, err := pwm.OpenFrameLink(p.Serial.Port, p.Serial.Baud, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, link.Close)
		txs = append(txs, link.Channel(pwm.ChannelTransmit))
		statuses = append(statuses, link.Channel(pwm.ChannelStatus))
	}
	if useMonitor {
		m, err := monitor.Open(monitor.DefaultSampleRate)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, nil, err
		}
		closers = append(closers, m.Close)
		txs = append(txs, m)
	}

	closeAll = func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing output", "err", err)
			}
		}
	}
	return pwm.Tee(txs...), pwm.Tee(statuses...), closeAll, nil
}

func newPlayer(dir string, p *config.Profile) (*player.Player, func(), error) {
	vol, err := storage.Mount(dir)
	if err != nil {
		return nil, nil, err
	}
	tx, status, closeAll, err := outputs(p)
	if err != nil {
		return nil, nil, err
	}
	minInterval, maxInterval := p.ServiceBounds()
	pl := player.New(player.Options{
		Volume:             vol,
		Tx:                 tx,
		Status:             status,
		ClockHz:            p.ClockHz,
		Limits:             p.Limits,
		Manual:             p.ManualTable(),
		Pool:               midifile.NewBudgetPool(p.MemoryBudgetBytes),
		MaxTrackBytes:      uint32(p.MaxTrackBytes),
		PollInterval:       p.PollInterval(),
		ServiceMinInterval: minInterval,
		ServiceMaxInterval: maxInterval,
		Logger:             logger,
	})
	return pl, closeAll, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	pl, closeAll, err := newPlayer(args[0], p)
	if err != nil {
		return err
	}
	defer closeAll()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pl.Run(ctx) }()

	if err := pl.SelectFile(args[1]); err != nil {
		return err
	}
	if _, err := pl.StartPlayback(); err != nil {
		return err
	}
	fmt.Printf("Playing %s\n", args[1])

	var res sequencer.Result
	select {
	case res = <-pl.Ended():
	case <-ctx.Done():
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}
	select {
	case res = <-pl.Ended():
	default:
	}

	select {
	case f := <-pl.Failures():
		return f
	default:
	}
	fmt.Printf("%s: %d events, %d notes, %s\n", res.State, res.Events, res.Notes, res.Elapsed)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	a, err := api.Analyze(filepath.Base(args[0]), data, p, logger)
	if err != nil {
		return err
	}

	fmt.Printf("File:      %s (%s)\n", a.File, a.Format)
	fmt.Printf("Header:    format %d, %d tracks, %d ticks/beat\n", a.Header.Format, a.Header.TrackCount, a.Header.Division)
	for _, c := range a.Chunks {
		fmt.Printf("  %s at %d, %d bytes\n", c.Tag, c.Offset, c.Size)
	}
	if a.PlayableTrack < 0 {
		fmt.Println("Playable:  none")
		return midifile.ErrNoPlayableTrack
	}
	fmt.Printf("Playable:  track %d\n", a.PlayableTrack)
	fmt.Printf("Playback:  %s after %d events, %d notes, %dms\n", a.Outcome, a.Events, a.Notes, a.DurationMs)
	if a.PlaybackError != "" {
		fmt.Printf("Error:     %s (offset %d)\n", a.PlaybackError, a.StoppedAt)
	}

	if verify {
		if a.CrossCheck == nil {
			return fmt.Errorf("cross-check failed: %s", a.CrossError)
		}
		out, _ := json.Marshal(a.CrossCheck)
		fmt.Printf("Verify:    %s\n", out)
	}
	return nil
}

func parseUint(s string, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > max {
		return 0, fmt.Errorf("%q is not a number in 0-%d", s, max)
	}
	return v, nil
}

func printDerivation(p *config.Profile, out tone.Output) error {
	fmt.Printf("Output:    %s\n", out)
	if !out.OK {
		return nil
	}
	regs, err := pwm.Derive(p.ClockHz, out.Frequency, out.DutyPercent)
	if err != nil {
		return err
	}
	fmt.Printf("Registers: %s\n", regs)
	return nil
}

func runTone(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	note, err := parseUint(args[0], 255)
	if err != nil {
		return err
	}
	velocity := 127
	if len(args) == 2 {
		if velocity, err = parseUint(args[1], 255); err != nil {
			return err
		}
	}

	fmt.Printf("Note:      %d (%s) velocity %d\n", note, tone.NoteName(uint8(note)), velocity)
	return printDerivation(p, p.Limits.FromNote(uint8(note), uint8(velocity)))
}

func runManual(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	freq, err := parseUint(args[0], tone.ADCMax)
	if err != nil {
		return err
	}
	duty, err := parseUint(args[1], tone.ADCMax)
	if err != nil {
		return err
	}

	fmt.Printf("Readings:  frequency %d (index %d), duty %d\n", freq, tone.FrequencyIndex(uint16(freq)), duty)
	return printDerivation(p, p.Limits.FromManual(p.ManualTable(), uint16(freq), uint16(duty)))
}

func runGen(cmd *cobra.Command, args []string) error {
	if !strings.HasSuffix(strings.ToLower(outputFile), ".mid") {
		outputFile += ".mid"
	}
	if err := midifile.WriteFile(midifile.DemoScale(), outputFile); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	vol, err := storage.Mount(args[0])
	if err != nil {
		return err
	}
	files, err := vol.List()
	if err != nil {
		return err
	}
	for i, name := range files {
		if name == storage.BackEntry {
			continue
		}
		marker := " "
		if midifile.IsPlayableName(name) {
			marker = "♪"
		}
		fmt.Printf("%2d %s %s\n", i, marker, name)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	pl, closeAll, err := newPlayer(args[0], p)
	if err != nil {
		return err
	}
	defer closeAll()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pl.Run(ctx) }()

	uiErr := tui.Run(pl, p.Limits, p.ManualTable())
	cancel()
	return errors.Join(uiErr, <-done)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	fmt.Printf("Starting analyzer on port %d...\n", serverPort)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", serverPort)
	return api.StartServer(serverPort, p, logger)
}
