// Package proposal generates candidate object regions for a two-stage
// detector.
//
// Three Sources are provided:
//   - SelectiveSearch: graph segmentation followed by hierarchical grouping
//   - EdgeContours: bounding boxes of connected Canny edges
//   - TextWords: word boxes from Tesseract OCR
//
// Proposals are plain detection.Box values. They carry no score; a
// classifier assigns one later and detection.Filter prunes the result.
package proposal
