// piar - camera perception loop that reports animals and people over a serial link
// and mirrors the annotated view on a web dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-piar/internal/config"
	"github.com/teslashibe/go-piar/internal/log"
	"github.com/teslashibe/go-piar/pkg/app"
	"github.com/teslashibe/go-piar/pkg/debug"
)

func main() {
	cfg := parseFlags()

	log.Init(cfg.LogLevel)
	debug.Frames = cfg.Debug && *debugFrames

	a, err := app.New(cfg)
	if err != nil {
		log.Error("configuration error", "err", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		var initErr *app.InitError
		if errors.As(err, &initErr) && *holdOnError {
			// Keep the dashboard up so the failure stays visible
			log.Info("holding dashboard after init failure; Ctrl+C to exit")
			<-ctx.Done()
		}
		log.Error("initialization failed", "err", err)
		a.Shutdown()
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.Error("detection loop stopped", "err", err)
		a.Shutdown()
		os.Exit(1)
	}
}

var (
	debugFrames = flag.Bool("debug-frames", false, "Log every frame's predictions (requires --debug)")
	holdOnError = flag.Bool("hold-on-error", true, "Keep the dashboard running after an initialization failure")
)

// parseFlags parses command line flags over env overrides and returns configuration.
func parseFlags() config.Config {
	cfg := config.DefaultConfig()
	cfg.LoadEnv()

	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.CameraSource, "source", cfg.CameraSource, "Camera source: local or webrtc")
	flag.StringVar(&cfg.CameraDevice, "camera", cfg.CameraDevice, "Local camera index or device path")
	flag.StringVar(&cfg.RobotIP, "robot-ip", cfg.RobotIP, "Robot IP address for the webrtc source (overrides ROBOT_IP)")
	flag.IntVar(&cfg.FrameRate, "fps", cfg.FrameRate, "Detection loop frames per second")
	flag.StringVar(&cfg.Detector, "detector", cfg.Detector, "Detector backend: yolo or ollama")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "YOLO ONNX model path")
	flag.StringVar(&cfg.OllamaHost, "ollama-host", cfg.OllamaHost, "Ollama server URL")
	flag.StringVar(&cfg.OllamaModel, "ollama-model", cfg.OllamaModel, "Ollama vision model")
	flag.StringVar(&cfg.Select, "select", cfg.Select, "Report selection: first or best")
	flag.DurationVar(&cfg.ReportWindow, "window", cfg.ReportWindow, "Minimum spacing between reports")
	flag.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "Serial port for reports (empty logs reports only)")
	flag.IntVar(&cfg.SerialBaud, "baud", cfg.SerialBaud, "Serial baud rate")
	flag.StringVar(&cfg.WebPort, "port", cfg.WebPort, "Dashboard port")
	flag.StringVar(&cfg.WebStaticDir, "static", cfg.WebStaticDir, "Dashboard static files directory")
	flag.IntVar(&cfg.PreviewWidth, "preview-width", cfg.PreviewWidth, "Max preview width in pixels")
	flag.StringVar(&cfg.PreviewFormat, "preview-format", cfg.PreviewFormat, "Preview format: jpeg or webp")
	flag.BoolVar(&cfg.KeepGoing, "keep-going", cfg.KeepGoing, "Skip failed frames instead of stopping")
	flag.Parse()

	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	return cfg
}
