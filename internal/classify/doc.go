// Package classify is the boundary to the region classifier of the two-stage
// detector. The detector only needs per-class probabilities for an image
// patch; where they come from is hidden behind the Classifier interface.
//
// ONNXClassifier serves exported MobileNetV2-style models through
// onnxruntime. ClassifierFunc wraps anything else, including test stubs.
package classify
