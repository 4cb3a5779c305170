package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/teslashibe/go-piar/internal/httpc"
	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/debug"
)

// ObjectsPrompt asks a vision model for detections in a fixed JSON shape.
const ObjectsPrompt = `You are an object detector.

Return JSON only:
{"objects": [{"label": "string", "confidence": 0.0, "box": [x, y, w, h]}]}

RULES
- label is a lowercase COCO class name such as person, dog, cat, bird, car.
- confidence is in [0,1].
- box is top-left x, top-left y, width, height, normalized to [0,1] (NOT pixels).
- List every object you see, most prominent first.
- If nothing is visible return {"objects": []}.
- JSON only. No markdown, no code fences, no comments.`

// OllamaConfig configures a remote vision-model detector.
type OllamaConfig struct {
	Host    string // http://localhost:11434
	Model   string
	Prompt  string
	Timeout time.Duration
}

// DefaultOllamaConfig returns defaults for a small local vision model.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:    "http://localhost:11434",
		Model:   "qwen2.5vl:3b",
		Prompt:  ObjectsPrompt,
		Timeout: 20 * time.Second,
	}
}

// OllamaDetector asks an Ollama vision model for detections.
// Much slower than YOLO; the loop simply processes fewer frames.
type OllamaDetector struct {
	client *api.Client
	config OllamaConfig
}

// NewOllama creates a detector talking to the Ollama server at cfg.Host.
func NewOllama(cfg OllamaConfig) (*OllamaDetector, error) {
	parsed, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", cfg.Host)
	}
	if cfg.Prompt == "" {
		cfg.Prompt = ObjectsPrompt
	}

	// Base URL only; the client appends /api/chat
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &OllamaDetector{
		client: api.NewClient(base, httpc.NewClient(cfg.Timeout)),
		config: cfg,
	}, nil
}

// Ping checks that the server is reachable and the model is pulled.
func (d *OllamaDetector) Ping(ctx context.Context) error {
	if _, err := d.client.Show(ctx, &api.ShowRequest{Model: d.config.Model}); err != nil {
		return fmt.Errorf("ollama model %s: %w", d.config.Model, err)
	}
	return nil
}

// Detect sends the frame to the model and converts its answer to pixel boxes.
func (d *OllamaDetector) Detect(ctx context.Context, frame camera.Frame) ([]Detection, error) {
	stream := false
	req := &api.ChatRequest{
		Model: d.config.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: d.config.Prompt,
				Images:  []api.ImageData{api.ImageData(frame.JPEG)},
			},
		},
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Options: map[string]any{
			"temperature": 0,
		},
	}

	var content strings.Builder
	err := d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	detections, err := parseObjects(content.String(), float64(frame.Width), float64(frame.Height))
	if err != nil {
		return nil, err
	}

	debug.FrameLog("ollama predictions", "frame", frame.Seq, "count", len(detections))
	return detections, nil
}

// Close is a no-op; the HTTP client holds no per-detector resources.
func (d *OllamaDetector) Close() error {
	return nil
}

type objectsResponse struct {
	Objects []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"`
	} `json:"objects"`
}

// parseObjects decodes the model answer and scales normalized boxes to the frame.
func parseObjects(raw string, width, height float64) ([]Detection, error) {
	raw = stripFences(raw)

	var resp objectsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	detections := make([]Detection, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		det := Detection{
			Class:      strings.ToLower(strings.TrimSpace(o.Label)),
			Confidence: clamp(o.Confidence, 0, 1),
		}
		if len(o.Box) == 4 {
			det.Box = Box{
				X: clamp(o.Box[0], 0, 1) * width,
				Y: clamp(o.Box[1], 0, 1) * height,
				W: clamp(o.Box[2], 0, 1) * width,
				H: clamp(o.Box[3], 0, 1) * height,
			}
		}
		detections = append(detections, det)
	}
	return detections, nil
}

// stripFences removes markdown code fences some models add despite instructions.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	return strings.TrimSpace(raw)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
