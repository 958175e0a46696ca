// Package imaging provides the image-side building blocks of region
// proposal: multi-scale pyramids, sliding windows, ROI cropping, edge maps
// and result annotation.
//
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is the top-left corner of the image, X increases
// rightward, and Y increases downward. Coordinates passed in and returned are
// relative to img.Bounds().Min, so sub-images behave like standalone images.
//
// # Lazy Iteration
//
// Pyramid and SlidingWindow produce one element per Next call, in the style
// of bufio.Scanner:
//
//	for pyr.Next() {
//	    level := pyr.Level()
//	    win, _ := imaging.NewSlidingWindow(level.Image, step, size)
//	    for win.Next() {
//	        w := win.Window()
//	        // classify w.Patch ...
//	    }
//	}
//
// Only the current level and the current window are held in memory.
// Neither iterator can be rewound.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Pyramid and SlidingWindow are not;
// use one iterator per goroutine. Source images are never modified.
//
// # Error Handling
//
// Invalid parameters (scale <= 1, step < 1, non-positive sizes) fail with
// detection.ErrInvalidConfiguration. Boxes that are malformed or fall
// outside the image fail with detection.ErrInvalidGeometry. A window larger
// than the image is not an error; the iterator is simply empty.
package imaging
