// Package config holds the settings shared by the proposal pipeline and the
// MCP server.
//
// A Config is built once at startup (Default, then Load and ApplyEnv) and
// handed to each component explicitly; nothing reads process-wide state.
package config

import (
	"encoding/json"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// EnvPrefix prefixes every environment override, e.g. PROPOSAL_MCP_LOG_LEVEL.
const EnvPrefix = "PROPOSAL_MCP_"

// Size is a width/height pair that reads naturally in JSON.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point converts s to an image.Point.
func (s Size) Point() image.Point { return image.Pt(s.Width, s.Height) }

// Pyramid configures the image pyramid.
type Pyramid struct {
	Scale   float64 `json:"scale"`    // Downscale factor between levels, > 1
	MinSize Size    `json:"min_size"` // Levels smaller than this end the pyramid
}

// Window configures the sliding window.
type Window struct {
	Step int  `json:"step"` // Pixels between windows, >= 1
	Size Size `json:"size"` // Window size
}

// Proposals configures region-proposal sources.
type Proposals struct {
	// Method is the selective search mode: "fast" or "quality".
	Method string `json:"method"`

	// ResizeWidth is the working width images are resized to before proposals
	// are generated. 0 keeps the original size.
	ResizeWidth int `json:"resize_width"`

	// MaxProposalsInfer caps how many proposals are classified per image.
	MaxProposalsInfer int `json:"max_proposals_infer"`

	// MinSize drops proposals smaller than this in either dimension.
	MinSize Size `json:"min_size"`

	// OCRLanguage is the Tesseract language used by the text proposal source.
	OCRLanguage string `json:"ocr_language"`
}

// Classifier configures the external region classifier.
type Classifier struct {
	ModelPath   string `json:"model_path"`   // ONNX model file
	LabelsPath  string `json:"labels_path"`  // JSON array of class names, in output order
	LibraryPath string `json:"library_path"` // onnxruntime shared library
	InputSize   Size   `json:"input_size"`   // Model input dimensions
	InputName   string `json:"input_name"`
	OutputName  string `json:"output_name"`
	Layout      string `json:"layout"`       // Input tensor layout: nhwc (Keras) or nchw
	TargetLabel string `json:"target_label"` // Class kept by the detection pipelines
}

// Logging configures logrus.
type Logging struct {
	Level string `json:"level"`
}

// Config is the complete configuration.
type Config struct {
	Pyramid    Pyramid                `json:"pyramid"`
	Window     Window                 `json:"window"`
	Filter     detection.FilterConfig `json:"filter"`
	Proposals  Proposals              `json:"proposals"`
	Classifier Classifier             `json:"classifier"`
	Logging    Logging                `json:"logging"`
}

// Default returns the stock configuration: a MobileNetV2-sized 224x224
// classifier, a 1.5x pyramid and strict 0.99 / 0.3 filter thresholds.
func Default() Config {
	return Config{
		Pyramid: Pyramid{
			Scale:   1.5,
			MinSize: Size{Width: 224, Height: 224},
		},
		Window: Window{
			Step: 16,
			Size: Size{Width: 224, Height: 224},
		},
		Filter: detection.FilterConfig{
			MinProba:      0.99,
			OverlapThresh: 0.3,
		},
		Proposals: Proposals{
			Method:            "fast",
			ResizeWidth:       500,
			MaxProposalsInfer: 200,
			MinSize:           Size{Width: 5, Height: 5},
			OCRLanguage:       "eng",
		},
		Classifier: Classifier{
			InputSize:   Size{Width: 224, Height: 224},
			InputName:   "input_1",
			OutputName:  "dense_1",
			Layout:      "nhwc",
			TargetLabel: "raccoon",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads a JSON config file on top of Default. Fields absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PROPOSAL_MCP_* environment variables.
//
// Recognized variables:
//
//	PROPOSAL_MCP_LOG_LEVEL          logging.level
//	PROPOSAL_MCP_MODEL_PATH         classifier.model_path
//	PROPOSAL_MCP_LABELS_PATH        classifier.labels_path
//	PROPOSAL_MCP_ORT_LIBRARY        classifier.library_path
//	PROPOSAL_MCP_TARGET_LABEL       classifier.target_label
//	PROPOSAL_MCP_INPUT_LAYOUT       classifier.layout
//	PROPOSAL_MCP_MIN_PROBA          filter.min_proba
//	PROPOSAL_MCP_OVERLAP_THRESH     filter.overlap_thresh
//	PROPOSAL_MCP_MAX_PROPOSALS      proposals.max_proposals_infer
//	PROPOSAL_MCP_SEARCH_METHOD      proposals.method
//
// Unparseable numbers are reported as errors rather than ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	strs := map[string]*string{
		"LOG_LEVEL":     &c.Logging.Level,
		"MODEL_PATH":    &c.Classifier.ModelPath,
		"LABELS_PATH":   &c.Classifier.LabelsPath,
		"ORT_LIBRARY":   &c.Classifier.LibraryPath,
		"TARGET_LABEL":  &c.Classifier.TargetLabel,
		"INPUT_LAYOUT":  &c.Classifier.Layout,
		"SEARCH_METHOD": &c.Proposals.Method,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"MIN_PROBA":      &c.Filter.MinProba,
		"OVERLAP_THRESH": &c.Filter.OverlapThresh,
	}
	for name, dst := range floats {
		v := strings.TrimSpace(getenv(EnvPrefix + name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, name)
		}
		*dst = f
	}

	if v := strings.TrimSpace(getenv(EnvPrefix + "MAX_PROPOSALS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%sMAX_PROPOSALS", EnvPrefix)
		}
		c.Proposals.MaxProposalsInfer = n
	}

	return nil
}

// Validate checks every section and wraps detection.ErrInvalidConfiguration
// on the first problem found.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(detection.ErrInvalidConfiguration, format, args...)
	}

	if !(c.Pyramid.Scale > 1) {
		return invalid("pyramid.scale %v must be > 1", c.Pyramid.Scale)
	}
	if c.Pyramid.MinSize.Width <= 0 || c.Pyramid.MinSize.Height <= 0 {
		return invalid("pyramid.min_size must be positive")
	}
	if c.Window.Step < 1 {
		return invalid("window.step %d must be >= 1", c.Window.Step)
	}
	if c.Window.Size.Width <= 0 || c.Window.Size.Height <= 0 {
		return invalid("window.size must be positive")
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	switch c.Proposals.Method {
	case "fast", "quality":
	default:
		return invalid("proposals.method %q must be fast or quality", c.Proposals.Method)
	}
	if c.Proposals.ResizeWidth < 0 {
		return invalid("proposals.resize_width %d must not be negative", c.Proposals.ResizeWidth)
	}
	if c.Proposals.MaxProposalsInfer < 1 {
		return invalid("proposals.max_proposals_infer %d must be >= 1", c.Proposals.MaxProposalsInfer)
	}
	if c.Classifier.InputSize.Width <= 0 || c.Classifier.InputSize.Height <= 0 {
		return invalid("classifier.input_size must be positive")
	}
	switch strings.ToLower(c.Classifier.Layout) {
	case "nhwc", "nchw":
	default:
		return invalid("classifier.layout %q must be nhwc or nchw", c.Classifier.Layout)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	return nil
}

// NewLogger builds a logrus logger writing to stderr at the configured level.
// Stdout is reserved for the MCP protocol.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
