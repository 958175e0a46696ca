// Package ocr locates text in images using Tesseract (via gosseract/v2).
//
// Recognized word, line or block regions are returned as detection.Box
// values so they can be fed to the same filtering and annotation code as any
// other region proposal.
//
// # Prerequisites
//
// Tesseract and its language data must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Images are passed to Tesseract as in-memory PNG bytes; no temporary files
// are written.
package ocr
