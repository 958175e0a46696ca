// Package server implements the MCP (Model Context Protocol) server for
// region proposal and object detection tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logs go to stderr through logrus so they never interleave with protocol
// output.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Multi-scale Scanning:
//   - image_pyramid: Levels of an image pyramid
//   - image_sliding_windows: Sliding window positions
//
// Box Scoring:
//   - box_iou: Intersection over Union of two boxes
//   - boxes_filter: Probability threshold plus non-max suppression
//
// Region Proposals:
//   - image_selective_search: Segmentation-based proposals
//   - image_edge_proposals: Edge contour proposals
//   - image_text_proposals: OCR word, line or block proposals
//
// Detection:
//   - image_detect_objects: Proposals, classification and filtering (R-CNN)
//   - image_detect_sliding: Pyramid plus sliding window classification
//
// The detection tools need a classifier. It is loaded from
// classifier.model_path and classifier.labels_path on first use, so the
// other tools work without a model.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC error responses:
//   - -32602: bad arguments, invalid geometry or invalid configuration
//   - -32000: any other tool failure (missing file, OCR or model errors)
//
// # Usage
//
//	cfg := config.Default()
//	srv := server.New(cfg, server.WithLogger(logger))
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal(err)
//	}
package server
