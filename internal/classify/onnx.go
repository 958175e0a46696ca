package classify

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/proposal-tools-mcp/internal/config"
)

var envMu sync.Mutex

// initEnvironment initializes the onnxruntime environment once per process.
func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	return ort.InitializeEnvironment()
}

// ONNXClassifier runs a single-input, single-output softmax classifier with
// onnxruntime. Calls to Classify are serialized because the session reuses
// one pair of tensors.
type ONNXClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    image.Point
	layout  Layout
	logger  logrus.FieldLogger
}

// NewONNXClassifier loads the model named by cfg. numClasses must match the
// model's output width.
func NewONNXClassifier(cfg config.Classifier, numClasses int, logger logrus.FieldLogger) (*ONNXClassifier, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("classifier model path not set")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "classifier model")
	}
	if numClasses < 1 {
		return nil, errors.Errorf("numClasses %d must be positive", numClasses)
	}
	size := cfg.InputSize.Point()
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultInputSize
	}
	layout, err := ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, errors.Wrap(err, "failed to initialize onnxruntime")
	}

	input, err := ort.NewTensor(ort.NewShape(layout.Shape(size)...), make([]float32, 3*size.X*size.Y))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numClasses)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(1); err != nil {
		logger.WithError(err).Warn("could not limit onnxruntime threads")
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "failed to load model %s", cfg.ModelPath)
	}

	logger.WithFields(logrus.Fields{
		"model":   cfg.ModelPath,
		"input":   size,
		"layout":  layout,
		"classes": numClasses,
	}).Info("classifier loaded")

	return &ONNXClassifier{
		session: session,
		input:   input,
		output:  output,
		size:    size,
		layout:  layout,
		logger:  logger,
	}, nil
}

// InputSize returns the model input resolution.
func (c *ONNXClassifier) InputSize() image.Point { return c.size }

// Classify preprocesses patch and returns the model's class probabilities.
func (c *ONNXClassifier) Classify(ctx context.Context, patch image.Image) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := Preprocess(patch, c.size, c.layout)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, errors.New("classifier is closed")
	}
	copy(c.input.GetData(), data)
	if err := c.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	raw := c.output.GetData()
	probs := make([]float64, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
	}
	return probs, nil
}

// Close releases the session and its tensors. The classifier cannot be used
// afterwards.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.input.Destroy()
	c.output.Destroy()
	c.session = nil
	return err
}
