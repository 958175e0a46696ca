// Package pipeline wires proposal sources, a classifier and the proposal
// filter into complete object detectors.
//
// RCNN classifies regions from a proposal.Source. SlidingWindowDetector
// classifies every window of an image pyramid. Both keep only regions whose
// top class is the configured target label, then apply the probability
// threshold and non-max suppression from detection.
package pipeline
