// Package app wires the perception loop to its camera, detector, transport and dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-piar/internal/config"
	"github.com/teslashibe/go-piar/internal/log"
	"github.com/teslashibe/go-piar/pkg/annotate"
	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/debug"
	"github.com/teslashibe/go-piar/pkg/detection"
	"github.com/teslashibe/go-piar/pkg/metrics"
	"github.com/teslashibe/go-piar/pkg/pipeline"
	"github.com/teslashibe/go-piar/pkg/report"
	"github.com/teslashibe/go-piar/pkg/transport"
	"github.com/teslashibe/go-piar/pkg/web"
)

// Status lines shown on the dashboard.
const (
	StatusLoadingModel  = "Loading model..."
	StatusStartCamera   = "Starting camera..."
	StatusRunning       = "Running"
	StatusStopped       = "Stopped"
	StatusDetectorError = "❌ Error loading detector"
	StatusCameraError   = "❌ Camera error"
	StatusSerialError   = "❌ Serial error"
)

// firstFrameTimeout bounds the wait for the robot's first decoded picture.
const firstFrameTimeout = 10 * time.Second

// InitError is an initialization failure. The loop never starts after one.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// App owns every component of the perception loop and their lifecycle.
type App struct {
	config config.Config
	clock  clock.Clock
	log    *slog.Logger

	// Vision
	source   camera.Source
	cameras  *camera.Manager
	detector detection.Detector

	// Output
	serial    *transport.Serial
	transport transport.Transport
	canvas    *annotate.Canvas
	encoder   annotate.Encoder
	previewID uint64

	metrics   *metrics.Metrics
	webServer *web.Server

	scheduler *pipeline.TickerScheduler
	loop      *pipeline.Loop
}

// New validates the configuration and creates an app.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug.Enabled = cfg.Debug

	return &App{
		config:  cfg,
		clock:   clock.New(),
		log:     log.Component("app"),
		metrics: metrics.New(),
		cameras: camera.NewManager(camera.DefaultConfig()),
		encoder: annotate.Encoder{
			Format:   strings.ToLower(cfg.PreviewFormat),
			MaxWidth: cfg.PreviewWidth,
			Quality:  75,
		},
	}, nil
}

// Init starts the dashboard, then loads the detector, the camera and the transport.
// Any failure is shown as the status line and returned as an *InitError.
func (a *App) Init(ctx context.Context) error {
	a.webServer = web.NewServer(web.Options{
		Port:      a.config.WebPort,
		StaticDir: a.config.WebStaticDir,
		Camera:    a.cameras,
		Metrics:   a.metrics.Handler(),
	})
	a.webServer.StartAsync(ctx)

	a.webServer.SetStatus(StatusLoadingModel)
	if err := a.initDetector(ctx); err != nil {
		return a.initFailed(StatusDetectorError, "detector", err)
	}
	a.log.Info("detector ready", "backend", a.config.Detector)

	a.webServer.SetStatus(StatusStartCamera)
	if err := a.initCamera(ctx); err != nil {
		return a.initFailed(StatusCameraError, "camera", err)
	}
	a.log.Info("camera ready", "source", a.config.CameraSource)

	if err := a.initTransport(); err != nil {
		return a.initFailed(StatusSerialError, "transport", err)
	}

	return a.initLoop()
}

func (a *App) initFailed(status, component string, err error) error {
	a.webServer.SetStatus(status)
	a.log.Error("initialization failed", "component", component, "err", err)
	return &InitError{Component: component, Err: err}
}

func (a *App) initDetector(ctx context.Context) error {
	switch a.config.Detector {
	case config.DetectorOllama:
		cfg := detection.DefaultOllamaConfig()
		cfg.Host = a.config.OllamaHost
		cfg.Model = a.config.OllamaModel

		d, err := detection.NewOllama(cfg)
		if err != nil {
			return err
		}
		if err := d.Ping(ctx); err != nil {
			return err
		}
		a.detector = d
	default:
		cfg := detection.DefaultYOLOConfig()
		cfg.ModelPath = a.config.ModelPath

		d, err := detection.NewYOLO(cfg)
		if err != nil {
			return err
		}
		a.detector = d
	}
	return nil
}

func (a *App) initCamera(ctx context.Context) error {
	switch a.config.CameraSource {
	case config.SourceWebRTC:
		src := camera.NewWebRTCSource(a.config.SignallingURL())
		if err := src.Connect(ctx); err != nil {
			src.Close()
			return err
		}
		if err := src.WaitForFrame(ctx, firstFrameTimeout); err != nil {
			src.Close()
			return err
		}
		a.source = src
	default:
		src, err := camera.OpenCapture(a.config.CameraDevice, a.cameras.GetConfig())
		if err != nil {
			return err
		}
		a.source = src
		a.cameras.OnConfigChange = src.Apply
	}
	return nil
}

// initTransport opens the serial port, or falls back to the log-only transport.
func (a *App) initTransport() error {
	if a.config.SerialPort == "" {
		a.log.Warn("no serial port configured, reports are logged only")
		a.transport = transport.NewLog()
		return nil
	}

	s, err := transport.OpenSerial(a.config.SerialPort, a.config.SerialBaud)
	if err != nil {
		return err
	}
	a.serial = s

	targets := transport.Multi{s}
	if debug.Enabled {
		targets = append(targets, transport.NewLog())
	}
	a.transport = targets
	a.log.Info("serial transport ready", "port", s.Path(), "baud", a.config.SerialBaud)
	return nil
}

func (a *App) initLoop() error {
	selector, err := detection.SelectorFor(a.config.Select)
	if err != nil {
		return err
	}

	a.canvas = annotate.NewCanvas()
	a.canvas.OnPresent = a.sendPreview

	a.scheduler = pipeline.NewTickerScheduler(a.clock, a.config.FrameInterval())

	opts := []pipeline.Option{
		pipeline.WithClock(a.clock),
		pipeline.WithSelector(selector),
		pipeline.WithThrottle(report.NewThrottle(a.config.ReportWindow, a.clock)),
		pipeline.WithObserver(a.metrics),
		pipeline.WithReportHook(func(r report.Report) { a.webServer.AddReport(r) }),
	}
	if a.config.KeepGoing {
		opts = append(opts, pipeline.WithErrorHandler(a.continueAfter))
	}
	debug.Log("loop configured",
		"interval", a.config.FrameInterval(),
		"keep_going", a.config.KeepGoing,
		"preview", a.encoder.Format)

	a.loop, err = pipeline.New(pipeline.Capabilities{
		Source:    a.source,
		Detector:  a.detector,
		Sink:      a.canvas,
		Transport: a.transport,
		Display:   a.webServer,
		Scheduler: a.scheduler,
	}, opts...)
	if err != nil {
		return err
	}

	throttle := a.loop.Throttle()
	a.webServer.ThrottleState = func() report.State { return throttle.StateAt(a.clock.Now()) }
	return nil
}

// continueAfter keeps the loop going after a per-frame failure.
func (a *App) continueAfter(err error) error {
	if errors.Is(err, camera.ErrClosed) {
		return err
	}
	stage, _ := pipeline.StageOf(err)
	a.log.Warn("frame failed", "stage", stage, "err", err)
	return nil
}

// sendPreview encodes the composed canvas for dashboard viewers.
func (a *App) sendPreview(img image.Image) {
	if !a.webServer.WantsPreview() {
		return
	}
	data, err := a.encoder.Encode(img)
	if err != nil {
		debug.FrameLog("preview encode failed", "err", err)
		return
	}
	a.previewID++
	b := img.Bounds()
	a.webServer.SendPreview(b.Dx(), b.Dy(), a.encoder.Format, data, a.previewID)
}

// Run drives the detection loop until the context is cancelled or a frame fails.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return errors.New("app: Run called before Init")
	}

	a.webServer.SetStatus(StatusRunning)
	a.webServer.SetRunning(true)
	a.log.Info("detection loop running",
		"fps", a.config.FrameRate,
		"select", a.config.Select,
		"window", a.config.ReportWindow)

	err := a.loop.Run(ctx)

	a.webServer.SetRunning(false)
	a.webServer.SetStatus(StatusStopped)

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Dashboard returns the dashboard server, nil before Init.
func (a *App) Dashboard() *web.Server {
	return a.webServer
}

// Shutdown releases every component.
func (a *App) Shutdown() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.serial != nil {
		a.serial.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	a.log.Info("shutdown complete")
}
