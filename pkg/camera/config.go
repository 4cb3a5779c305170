// Package camera provides video frame sources and runtime-configurable capture settings.
package camera

// Config holds capture parameters for a frame source.
// These can be modified via the camera API at runtime.
type Config struct {
	// === Resolution ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// === Exposure ===
	// Brightness adjustment (-1.0 to +1.0), mapped onto the driver range.
	Brightness float64 `json:"brightness"`

	// Gain is manual sensor gain (1.0 to 16.0).
	// Set to 0 for auto gain.
	Gain float64 `json:"gain"`

	// Exposure is manual exposure in driver units (1 to 10000).
	// Set to 0 for auto exposure.
	Exposure int `json:"exposure"`

	// === Zoom / focus ===
	// Zoom is the driver zoom factor (1.0 to 4.0).
	Zoom float64 `json:"zoom"`

	// AutoFocus enables continuous autofocus where the driver supports it.
	AutoFocus bool `json:"auto_focus"`
}

// Capture limits accepted by Validate.
const (
	MaxWidth    = 1920
	MaxHeight   = 1080
	MaxGain     = 16.0
	MaxExposure = 10000
	MaxZoom     = 4.0
)

// DefaultConfig returns the 640x480 configuration the detector is tuned for.
// Moderate resolution keeps CPU usage low on small boards.
func DefaultConfig() Config {
	return Config{
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,

		Brightness: 0,
		Gain:       0, // Auto
		Exposure:   0, // Auto

		Zoom:      1.0,
		AutoFocus: true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 1920")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 1080")
	}
	if c.Framerate < 1 || c.Framerate > 60 {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errors = append(errors, "brightness must be between -1.0 and 1.0")
	}
	if c.Gain != 0 && (c.Gain < 1.0 || c.Gain > MaxGain) {
		errors = append(errors, "gain must be 0 (auto) or between 1.0 and 16.0")
	}
	if c.Exposure != 0 && (c.Exposure < 1 || c.Exposure > MaxExposure) {
		errors = append(errors, "exposure must be 0 (auto) or between 1 and 10000")
	}
	if c.Zoom < 1.0 || c.Zoom > MaxZoom {
		errors = append(errors, "zoom must be between 1.0 and 4.0")
	}

	return errors
}
