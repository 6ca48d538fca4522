package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical tracker defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

// TrackerConfig is the root configuration for the clock tracker and its
// harness. Every field is optional; the Get* methods supply defaults for
// anything the file leaves out, so partial configs are safe.
type TrackerConfig struct {
	// Filter noise
	AccelerationNoise *float64 `json:"acceleration_noise,omitempty"`
	TimestampNoise    *float64 `json:"timestamp_noise,omitempty"`
	OutlierRatio      *float64 `json:"outlier_ratio,omitempty"`

	// Initial state. The offset always comes from the first receive timestamp.
	InitialSkew       *float64  `json:"initial_skew,omitempty"`
	InitialDrift      *float64  `json:"initial_drift,omitempty"`
	InitialCovariance []float64 `json:"initial_covariance,omitempty"` // diagonal: offset, skew, drift
	CovarianceCheck   *bool     `json:"covariance_check,omitempty"`

	// ReorderWindow is how far, in seconds, a send timestamp may fall behind
	// the tracker before it is treated as a counter jump instead of a stale
	// line.
	ReorderWindow *float64 `json:"reorder_window,omitempty"`

	SerialPort *SerialPortConfig `json:"serial_port,omitempty"`
}

// SerialPortConfig holds the line settings for a live serial source.
type SerialPortConfig struct {
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// Defaults mirrored by config/tracker.defaults.json.
const (
	DefaultAccelerationNoise = 1e-8
	DefaultTimestampNoise    = 0.18e-9
	DefaultOutlierRatio      = 2.8
	DefaultInitialSkew       = 1.0
	DefaultInitialDrift      = 0.0
	DefaultReorderWindow     = 1.0
	DefaultBaudRate          = 115200
)

// DefaultInitialCovariance is the diagonal of the initial state covariance.
var DefaultInitialCovariance = [3]float64{8e4, 4e2, 0.8}

// EmptyTrackerConfig returns a TrackerConfig with all fields unset.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// LoadTrackerConfig loads a TrackerConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v != nil && !(*v > 0 && !math.IsInf(*v, 1)) {
		return fmt.Errorf("%s must be positive and finite, got %g", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TrackerConfig) Validate() error {
	if err := positive("acceleration_noise", c.AccelerationNoise); err != nil {
		return err
	}
	if err := positive("timestamp_noise", c.TimestampNoise); err != nil {
		return err
	}
	if err := positive("outlier_ratio", c.OutlierRatio); err != nil {
		return err
	}
	if err := positive("reorder_window", c.ReorderWindow); err != nil {
		return err
	}

	if c.InitialCovariance != nil {
		if len(c.InitialCovariance) != 3 {
			return fmt.Errorf("initial_covariance must have 3 entries, got %d", len(c.InitialCovariance))
		}
		for i, v := range c.InitialCovariance {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("initial_covariance[%d] must be non-negative, got %g", i, v)
			}
		}
	}

	if sp := c.SerialPort; sp != nil {
		if sp.BaudRate != nil && *sp.BaudRate <= 0 {
			return fmt.Errorf("serial_port.baud_rate must be positive, got %d", *sp.BaudRate)
		}
		if sp.DataBits != nil && (*sp.DataBits < 5 || *sp.DataBits > 8) {
			return fmt.Errorf("serial_port.data_bits must be between 5 and 8, got %d", *sp.DataBits)
		}
		if sp.StopBits != nil && *sp.StopBits != 1 && *sp.StopBits != 2 {
			return fmt.Errorf("serial_port.stop_bits must be 1 or 2, got %d", *sp.StopBits)
		}
		if sp.Parity != nil {
			switch strings.ToUpper(strings.TrimSpace(*sp.Parity)) {
			case "", "N", "NONE", "E", "EVEN", "O", "ODD":
			default:
				return fmt.Errorf("serial_port.parity %q: expected N, E, or O", *sp.Parity)
			}
		}
	}

	return nil
}

// GetAccelerationNoise returns the acceleration_noise value or the default.
func (c *TrackerConfig) GetAccelerationNoise() float64 {
	if c.AccelerationNoise == nil {
		return DefaultAccelerationNoise
	}
	return *c.AccelerationNoise
}

// GetTimestampNoise returns the timestamp_noise value or the default.
func (c *TrackerConfig) GetTimestampNoise() float64 {
	if c.TimestampNoise == nil {
		return DefaultTimestampNoise
	}
	return *c.TimestampNoise
}

// GetOutlierRatio returns the outlier_ratio value or the default.
func (c *TrackerConfig) GetOutlierRatio() float64 {
	if c.OutlierRatio == nil {
		return DefaultOutlierRatio
	}
	return *c.OutlierRatio
}

// GetInitialSkew returns the initial_skew value or the default.
func (c *TrackerConfig) GetInitialSkew() float64 {
	if c.InitialSkew == nil {
		return DefaultInitialSkew
	}
	return *c.InitialSkew
}

// GetInitialDrift returns the initial_drift value or the default.
func (c *TrackerConfig) GetInitialDrift() float64 {
	if c.InitialDrift == nil {
		return DefaultInitialDrift
	}
	return *c.InitialDrift
}

// GetInitialCovariance returns the initial covariance diagonal or the default.
func (c *TrackerConfig) GetInitialCovariance() [3]float64 {
	if len(c.InitialCovariance) != 3 {
		return DefaultInitialCovariance
	}
	return [3]float64{c.InitialCovariance[0], c.InitialCovariance[1], c.InitialCovariance[2]}
}

// GetCovarianceCheck returns the covariance_check value or the default.
func (c *TrackerConfig) GetCovarianceCheck() bool {
	if c.CovarianceCheck == nil {
		return true
	}
	return *c.CovarianceCheck
}

// GetReorderWindow returns the reorder_window value or the default.
func (c *TrackerConfig) GetReorderWindow() float64 {
	if c.ReorderWindow == nil {
		return DefaultReorderWindow
	}
	return *c.ReorderWindow
}

// GetSerialPort returns the serial line settings with defaults applied.
// Parity is returned as written; the serial layer normalizes it.
func (c *TrackerConfig) GetSerialPort() (baud, dataBits, stopBits int, parity string) {
	baud, dataBits, stopBits, parity = DefaultBaudRate, 8, 1, "N"
	sp := c.SerialPort
	if sp == nil {
		return
	}
	if sp.BaudRate != nil {
		baud = *sp.BaudRate
	}
	if sp.DataBits != nil {
		dataBits = *sp.DataBits
	}
	if sp.StopBits != nil {
		stopBits = *sp.StopBits
	}
	if sp.Parity != nil {
		parity = *sp.Parity
	}
	return
}
