// Package detection provides the box geometry and proposal filtering used to
// turn classified candidate regions into final detections.
//
// # Coordinate System
//
// Boxes use inclusive pixel coordinates:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward, Y increases downward
//   - (X1, Y1) and (X2, Y2) are both pixels inside the box
//
// This differs from image.Rectangle, whose Max corner is exclusive. Use
// Box.Rect and BoxFromRect to convert between the two.
//
// # Intersection over Union
//
// IoU counts edge pixels of both boxes, so areas are computed as
// (x2-x1+1)*(y2-y1+1). Two boxes sharing a single column of pixels therefore
// have a non-zero overlap.
//
// # Proposal Filter
//
// Filter applies, in order:
//
//  1. Label match (optional): drop boxes of other classes
//  2. Probability threshold: drop boxes scoring below MinProba
//  3. Greedy non-max suppression: keep the best box, drop everything overlapping
//     it by more than OverlapThresh, repeat
//
// The result is ordered highest score first. Ties are broken by input order.
//
// # Errors
//
// Malformed boxes fail with ErrInvalidGeometry and out-of-range thresholds fail
// with ErrInvalidConfiguration. Both are sentinels meant for errors.Is.
package detection
