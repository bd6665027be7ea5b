// Package api provides the read-only analyzer server for coilmidi
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/coilmidi/pkg/config"
	"github.com/james-see/coilmidi/pkg/pwm"
	"github.com/james-see/coilmidi/pkg/tone"
)

// @title CoilMIDI Analyzer API
// @version 1.0
// @description Read-only analysis of MIDI files and output settings for a Tesla coil interrupter
// @host localhost:8080
// @BasePath /api/v1

// multipartSlack covers form boundaries and part headers around the upload
const multipartSlack = 64 << 10

// Server answers analyzer requests for one hardware profile
type Server struct {
	profile *config.Profile
	logger  *slog.Logger
}

// Derivation is a mapped output and the registers it programs
type Derivation struct {
	Input     map[string]int   `json:"input"`
	Output    tone.Output      `json:"output"`
	Registers *pwm.TimerParams `json:"registers,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// NewRouter builds the gin engine
func NewRouter(profile *config.Profile, logger *slog.Logger) *gin.Engine {
	if profile == nil {
		profile = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{profile: profile, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/tone", s.handleTone)
		v1.GET("/manual", s.handleManual)
		v1.GET("/profile", s.handleProfile)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

// StartServer starts the analyzer on the specified port
func StartServer(port int, profile *config.Profile, logger *slog.Logger) error {
	return NewRouter(profile, logger).Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("http request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

// statusFor maps an error's fault tag to an HTTP status
func statusFor(err error) int {
	switch ftag.Get(err) {
	case ftag.InvalidArgument:
		return http.StatusUnprocessableEntity
	case ftag.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := fmsg.GetIssue(err)
	if msg == "" {
		msg = err.Error()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": msg, "detail": err.Error()})
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "coilmidi",
	})
}

// handleAnalyze godoc
// @Summary Analyze a MIDI file
// @Description Upload a MIDI file and see how the player would read and time it
// @Tags analyze
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file to analyze"
// @Success 200 {object} Analysis
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /analyze [post]
func (s *Server) handleAnalyze(c *gin.Context) {
	limit := s.maxUpload()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.tooLarge(c, limit)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()
	if header.Size > limit {
		s.tooLarge(c, limit)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	a, err := Analyze(header.Filename, data, s.profile, s.logger)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// maxUpload is the largest file the analyzer accepts
func (s *Server) maxUpload() int64 {
	return int64(s.profile.MaxTrackBytes) * 4
}

func (s *Server) tooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File larger than %d bytes", limit)})
}

// handleTone godoc
// @Summary Preview a note
// @Description Returns the frequency, duty cycle and timer registers for a note and velocity
// @Tags preview
// @Produce json
// @Param note query int true "MIDI note number"
// @Param velocity query int false "Velocity (default 127)"
// @Success 200 {object} Derivation
// @Failure 400 {object} map[string]string
// @Router /tone [get]
func (s *Server) handleTone(c *gin.Context) {
	note, err := queryInt(c, "note", -1, 0, 255)
	if err != nil || note < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note must be 0-255"})
		return
	}
	velocity, err := queryInt(c, "velocity", 127, 0, 255)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := s.profile.Limits.FromNote(uint8(note), uint8(velocity))
	d := s.derive(out)
	d.Input = map[string]int{"note": note, "velocity": velocity}
	c.JSON(http.StatusOK, d)
}

// handleManual godoc
// @Summary Preview manual control
// @Description Returns the output for raw frequency and duty readings
// @Tags preview
// @Produce json
// @Param frequency query int true "Raw frequency reading 0-4095"
// @Param duty query int true "Raw duty reading 0-4095"
// @Success 200 {object} Derivation
// @Failure 400 {object} map[string]string
// @Router /manual [get]
func (s *Server) handleManual(c *gin.Context) {
	freq, ferr := queryInt(c, "frequency", 0, 0, tone.ADCMax)
	duty, derr := queryInt(c, "duty", 0, 0, tone.ADCMax)
	if err := errors.Join(ferr, derr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := s.profile.Limits.FromManual(s.profile.ManualTable(), uint16(freq), uint16(duty))
	d := s.derive(out)
	d.Input = map[string]int{"frequency": freq, "duty": duty}
	c.JSON(http.StatusOK, d)
}

// handleProfile godoc
// @Summary Hardware profile
// @Description Returns the profile the analyzer uses
// @Tags info
// @Produce json
// @Success 200 {object} config.Profile
// @Router /profile [get]
func (s *Server) handleProfile(c *gin.Context) {
	c.JSON(http.StatusOK, s.profile)
}

func (s *Server) derive(out tone.Output) Derivation {
	d := Derivation{Output: out}
	if !out.OK {
		return d
	}
	p, err := pwm.Derive(s.profile.ClockHz, out.Frequency, out.DutyPercent)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.Registers = &p
	return d
}

func queryInt(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d", name, lo, hi)
	}
	return v, nil
}
