package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
	"github.com/ironsheep/proposal-tools-mcp/internal/imaging"
	"github.com/ironsheep/proposal-tools-mcp/internal/ocr"
	"github.com/ironsheep/proposal-tools-mcp/internal/pipeline"
	"github.com/ironsheep/proposal-tools-mcp/internal/proposal"
)

// defaultLimit caps window and proposal listings when no limit is given.
const defaultLimit = 100

// errInvalidArguments marks malformed or missing tool arguments.
var errInvalidArguments = errors.New("invalid arguments")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "boxes_filter").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Bad arguments, invalid geometry and invalid configuration return -32602.
// Any other tool failure returns -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	start := time.Now()
	log := s.logger.WithField("tool", params.Name)

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		log.WithError(err).Warn("tool failed")
		if isInvalidParams(err) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}
	log.WithField("elapsed", time.Since(start)).Debug("tool complete")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

func isInvalidParams(err error) bool {
	return errors.Is(err, errInvalidArguments) ||
		errors.Is(err, detection.ErrInvalidGeometry) ||
		errors.Is(err, detection.ErrInvalidConfiguration)
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Multi-scale scanning
	case "image_pyramid":
		return s.handleImagePyramid(args)
	case "image_sliding_windows":
		return s.handleImageSlidingWindows(args)

	// Box scoring
	case "box_iou":
		return s.handleBoxIoU(args)
	case "boxes_filter":
		return s.handleBoxesFilter(args)

	// Region proposals
	case "image_selective_search":
		return s.handleSelectiveSearch(ctx, args)
	case "image_edge_proposals":
		return s.handleEdgeProposals(ctx, args)
	case "image_text_proposals":
		return s.handleTextProposals(ctx, args)

	// Detection
	case "image_detect_objects":
		return s.handleDetectObjects(ctx, args)
	case "image_detect_sliding":
		return s.handleDetectSliding(ctx, args)

	default:
		return nil, errors.Wrapf(errInvalidArguments, "unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments. Missing arguments decode as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errors.Wrap(errInvalidArguments, err.Error())
	}
	return nil
}

// pathArgs is embedded by every tool that reads an image.
type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) loadImage(a pathArgs) (image.Image, error) {
	if a.Path == "" {
		return nil, errors.Wrap(errInvalidArguments, "path is required")
	}
	return s.cache.Load(a.Path)
}

// listLimit resolves a listing limit. Zero selects defaultLimit.
func listLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, errors.Wrapf(errInvalidArguments, "limit %d must not be negative", limit)
	}
	if limit == 0 {
		return defaultLimit, nil
	}
	return limit, nil
}

// === Basic Image Information Handlers ===

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.Wrap(errInvalidArguments, "path is required")
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type dimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &dimensionsResult{Width: b.Dx(), Height: b.Dy()}, nil
}

// === Multi-scale Scanning Handlers ===

type imagePyramidArgs struct {
	pathArgs
	Scale         float64 `json:"scale"`
	MinWidth      int     `json:"min_width"`
	MinHeight     int     `json:"min_height"`
	IncludeImages bool    `json:"include_images"`
}

type pyramidLevelResult struct {
	Index  int                   `json:"index"`
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
	Scale  float64               `json:"scale"`
	Image  *imaging.EncodedImage `json:"image,omitempty"`
}

type pyramidResult struct {
	Count  int                  `json:"count"`
	Levels []pyramidLevelResult `json:"levels"`
}

func (s *Server) handleImagePyramid(args json.RawMessage) (interface{}, error) {
	a := imagePyramidArgs{
		Scale:     s.cfg.Pyramid.Scale,
		MinWidth:  s.cfg.Pyramid.MinSize.Width,
		MinHeight: s.cfg.Pyramid.MinSize.Height,
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}

	pyr, err := imaging.NewPyramid(img, a.Scale, image.Pt(a.MinWidth, a.MinHeight))
	if err != nil {
		return nil, err
	}

	res := &pyramidResult{Levels: []pyramidLevelResult{}}
	for pyr.Next() {
		level := pyr.Level()
		b := level.Image.Bounds()
		lr := pyramidLevelResult{Index: level.Index, Width: b.Dx(), Height: b.Dy(), Scale: level.Scale}
		if a.IncludeImages {
			enc, err := imaging.EncodePNGBase64(level.Image)
			if err != nil {
				return nil, err
			}
			lr.Image = enc
		}
		res.Levels = append(res.Levels, lr)
	}
	res.Count = len(res.Levels)
	return res, nil
}

type imageSlidingWindowsArgs struct {
	pathArgs
	Step   int `json:"step"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Limit  int `json:"limit"`
}

type windowResult struct {
	X   int           `json:"x"`
	Y   int           `json:"y"`
	Box detection.Box `json:"box"`
}

type windowsResult struct {
	Total     int            `json:"total"`
	Returned  int            `json:"returned"`
	Truncated bool           `json:"truncated"`
	Windows   []windowResult `json:"windows"`
}

func (s *Server) handleImageSlidingWindows(args json.RawMessage) (interface{}, error) {
	a := imageSlidingWindowsArgs{
		Step:   s.cfg.Window.Step,
		Width:  s.cfg.Window.Size.Width,
		Height: s.cfg.Window.Size.Height,
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit, err := listLimit(a.Limit)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}

	win, err := imaging.NewSlidingWindow(img, a.Step, image.Pt(a.Width, a.Height))
	if err != nil {
		return nil, err
	}

	res := &windowsResult{Total: win.Count(), Windows: []windowResult{}}
	for len(res.Windows) < limit && win.Next() {
		w := win.Window()
		res.Windows = append(res.Windows, windowResult{X: w.X, Y: w.Y, Box: w.Box()})
	}
	res.Returned = len(res.Windows)
	res.Truncated = res.Returned < res.Total
	return res, nil
}

// === Box Scoring Handlers ===

type boxIoUArgs struct {
	A *detection.Box `json:"box_a"`
	B *detection.Box `json:"box_b"`
}

func (s *Server) handleBoxIoU(args json.RawMessage) (interface{}, error) {
	var a boxIoUArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.A == nil || a.B == nil {
		return nil, errors.Wrap(errInvalidArguments, "box_a and box_b are required")
	}
	v, err := detection.IoU(*a.A, *a.B)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"iou": v}, nil
}

type scoredBoxArg struct {
	detection.Box
	Score float64 `json:"score"`
	Label string  `json:"label,omitempty"`
}

type boxesFilterArgs struct {
	Boxes         []scoredBoxArg `json:"boxes"`
	MinProba      *float64       `json:"min_proba"`
	OverlapThresh *float64       `json:"overlap_thresh"`
	Label         string         `json:"label"`
}

type boxesFilterResult struct {
	Input int                   `json:"input"`
	Kept  int                   `json:"kept"`
	Boxes []detection.ScoredBox `json:"boxes"`
}

func (s *Server) handleBoxesFilter(args json.RawMessage) (interface{}, error) {
	var a boxesFilterArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	cfg := s.cfg.Filter
	if a.MinProba != nil {
		cfg.MinProba = *a.MinProba
	}
	if a.OverlapThresh != nil {
		cfg.OverlapThresh = *a.OverlapThresh
	}
	cfg.Label = a.Label

	boxes := make([]detection.ScoredBox, len(a.Boxes))
	for i, b := range a.Boxes {
		boxes[i] = detection.ScoredBox{Box: b.Box, Score: b.Score, Label: b.Label}
	}

	kept, err := detection.Filter(boxes, cfg)
	if err != nil {
		return nil, err
	}
	if kept == nil {
		kept = []detection.ScoredBox{}
	}
	return &boxesFilterResult{Input: len(boxes), Kept: len(kept), Boxes: kept}, nil
}

// === Region Proposal Handlers ===

type proposalsResult struct {
	Source    string          `json:"source"`
	Width     int             `json:"width"`  // Working image width
	Height    int             `json:"height"` // Working image height
	Scale     float64         `json:"scale"`  // Original width / working width
	Total     int             `json:"total"`
	Returned  int             `json:"returned"`
	Truncated bool            `json:"truncated"`
	Boxes     []detection.Box `json:"boxes"`
}

// propose runs src over img (resized to resizeWidth when positive) and caps
// the listing.
func propose(ctx context.Context, name string, src proposal.Source, img image.Image, resizeWidth, limit int) (*proposalsResult, error) {
	work, scale := img, 1.0
	if resizeWidth > 0 {
		var err error
		work, scale, err = imaging.ResizeToWidth(img, resizeWidth)
		if err != nil {
			return nil, err
		}
	}

	boxes, err := src.Propose(ctx, work)
	if err != nil {
		return nil, err
	}

	b := work.Bounds()
	res := &proposalsResult{
		Source: name,
		Width:  b.Dx(),
		Height: b.Dy(),
		Scale:  scale,
		Total:  len(boxes),
	}
	if len(boxes) > limit {
		boxes = boxes[:limit]
		res.Truncated = true
	}
	if boxes == nil {
		boxes = []detection.Box{}
	}
	res.Boxes = boxes
	res.Returned = len(boxes)
	return res, nil
}

type selectiveSearchArgs struct {
	pathArgs
	Mode        string `json:"mode"`
	ResizeWidth *int   `json:"resize_width"`
	Limit       int    `json:"limit"`
}

func (s *Server) handleSelectiveSearch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	a := selectiveSearchArgs{Mode: s.cfg.Proposals.Method}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit, err := listLimit(a.Limit)
	if err != nil {
		return nil, err
	}
	mode, err := proposal.ParseMode(a.Mode)
	if err != nil {
		return nil, err
	}
	resize := s.cfg.Proposals.ResizeWidth
	if a.ResizeWidth != nil {
		resize = *a.ResizeWidth
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}

	src := &proposal.SelectiveSearch{Mode: mode, MinSize: s.cfg.Proposals.MinSize.Point(), Logger: s.logger}
	return propose(ctx, proposal.NameSelectiveSearch, src, img, resize, limit)
}

type edgeProposalsArgs struct {
	pathArgs
	Detector  string `json:"detector"`
	Threshold int    `json:"threshold"`
	Low       int    `json:"threshold_low"`
	High      int    `json:"threshold_high"`
	MinPixels int    `json:"min_pixels"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleEdgeProposals(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a edgeProposalsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit, err := listLimit(a.Limit)
	if err != nil {
		return nil, err
	}
	detector, err := proposal.ParseEdgeDetector(a.Detector)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}

	src := &proposal.EdgeContours{
		Detector:  detector,
		Threshold: a.Threshold,
		Low:       a.Low,
		High:      a.High,
		MinPixels: a.MinPixels,
		MinSize:   s.cfg.Proposals.MinSize.Point(),
	}
	return propose(ctx, proposal.NameEdgeContours, src, img, 0, limit)
}

type textProposalsArgs struct {
	pathArgs
	Language      string  `json:"language"`
	Level         string  `json:"level"`
	MinConfidence float64 `json:"min_confidence"`
	Limit         int     `json:"limit"`
}

type textProposalsResult struct {
	Engine    string           `json:"engine"`
	Total     int              `json:"total"`
	Returned  int              `json:"returned"`
	Truncated bool             `json:"truncated"`
	Regions   []ocr.TextRegion `json:"regions"`
}

func (s *Server) handleTextProposals(ctx context.Context, args json.RawMessage) (interface{}, error) {
	a := textProposalsArgs{Language: s.cfg.Proposals.OCRLanguage}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit, err := listLimit(a.Limit)
	if err != nil {
		return nil, err
	}
	level, err := ocr.ParseLevel(a.Level)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}

	rec := ocr.NewRecognizer(a.Language)
	rec.Level = level
	rec.MinConfidence = a.MinConfidence

	regions, err := rec.Regions(ctx, img)
	if err != nil {
		return nil, err
	}
	res := &textProposalsResult{Engine: "tesseract " + ocr.Version(), Total: len(regions)}
	if len(regions) > limit {
		regions = regions[:limit]
		res.Truncated = true
	}
	res.Regions = regions
	res.Returned = len(regions)
	return res, nil
}

// === Detection Handlers ===

// detectArgs holds the overrides shared by both detectors.
type detectArgs struct {
	pathArgs
	Label         string   `json:"label"`
	MinProba      *float64 `json:"min_proba"`
	OverlapThresh *float64 `json:"overlap_thresh"`
	Annotate      *bool    `json:"annotate"`
	IncludeBefore bool     `json:"include_before"`
	Color         string   `json:"color"`

	stroke color.Color
}

// apply copies the overrides onto cfg and parses the box color.
func (a *detectArgs) apply(cfg *config.Config) error {
	if a.Color != "" {
		c, err := imaging.ParseHexColor(a.Color)
		if err != nil {
			return errors.Wrap(errInvalidArguments, err.Error())
		}
		a.stroke = c
	}
	if a.Label != "" {
		cfg.Classifier.TargetLabel = a.Label
		cfg.Filter.Label = ""
	}
	if a.MinProba != nil {
		cfg.Filter.MinProba = *a.MinProba
	}
	if a.OverlapThresh != nil {
		cfg.Filter.OverlapThresh = *a.OverlapThresh
	}
	return nil
}

type detectResult struct {
	Label       string                `json:"label"`
	Proposals   int                   `json:"proposals"`
	Classified  int                   `json:"classified"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Scale       float64               `json:"scale"`
	ElapsedMs   int64                 `json:"elapsed_ms"`
	Before      []detection.ScoredBox `json:"before"`
	After       []detection.ScoredBox `json:"after"`
	Image       *imaging.EncodedImage `json:"image,omitempty"`
	BeforeImage *imaging.EncodedImage `json:"before_image,omitempty"`
}

func (s *Server) buildDetectResult(res *pipeline.Result, a detectArgs) (*detectResult, error) {
	b := res.Resized.Bounds()
	out := &detectResult{
		Label:      res.Label,
		Proposals:  res.Proposals,
		Classified: res.Classified,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Scale:      res.Scale,
		ElapsedMs:  res.Elapsed.Milliseconds(),
		Before:     res.Before,
		After:      res.After,
	}
	if out.Before == nil {
		out.Before = []detection.ScoredBox{}
	}
	if out.After == nil {
		out.After = []detection.ScoredBox{}
	}

	if a.Annotate != nil && !*a.Annotate {
		return out, nil
	}
	enc, err := imaging.EncodePNGBase64(imaging.Annotate(res.Resized, annotations(res.After, a.stroke)))
	if err != nil {
		return nil, err
	}
	out.Image = enc
	if a.IncludeBefore {
		enc, err := imaging.EncodePNGBase64(imaging.Annotate(res.Resized, annotations(res.Before, a.stroke)))
		if err != nil {
			return nil, err
		}
		out.BeforeImage = enc
	}
	return out, nil
}

// annotations captions each box as "label: 99.12%". A nil stroke draws in
// imaging.DefaultBoxColor.
func annotations(boxes []detection.ScoredBox, stroke color.Color) []imaging.AnnotatedBox {
	out := make([]imaging.AnnotatedBox, len(boxes))
	for i, b := range boxes {
		out[i] = imaging.AnnotatedBox{
			Rect:    b.Box.Rect(),
			Caption: fmt.Sprintf("%s: %.2f%%", b.Label, b.Score*100),
			Color:   stroke,
		}
	}
	return out
}

type detectObjectsArgs struct {
	detectArgs
	Source       string `json:"source"`
	Mode         string `json:"mode"`
	MaxProposals int    `json:"max_proposals"`
	ResizeWidth  *int   `json:"resize_width"`
}

func (s *Server) handleDetectObjects(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectObjectsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	cfg := s.cfg
	if err := a.apply(&cfg); err != nil {
		return nil, err
	}
	if a.Mode != "" {
		cfg.Proposals.Method = a.Mode
	}
	if a.MaxProposals != 0 {
		cfg.Proposals.MaxProposalsInfer = a.MaxProposals
	}
	if a.ResizeWidth != nil {
		cfg.Proposals.ResizeWidth = *a.ResizeWidth
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := proposal.SourceByName(a.Source, cfg.Proposals)
	if err != nil {
		return nil, err
	}
	if ss, ok := src.(*proposal.SelectiveSearch); ok {
		ss.Logger = s.logger
	}
	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}
	classifier, labels, err := s.loadClassifier()
	if err != nil {
		return nil, err
	}

	det := &pipeline.RCNN{
		Source:     src,
		Classifier: classifier,
		Labels:     labels,
		Config:     cfg,
		Logger:     s.logger.WithFields(logrus.Fields{"detector": "rcnn", "path": a.Path}),
	}
	res, err := det.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return s.buildDetectResult(res, a.detectArgs)
}

type detectSlidingArgs struct {
	detectArgs
	Scale float64 `json:"scale"`
	Step  int     `json:"step"`
}

func (s *Server) handleDetectSliding(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectSlidingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	cfg := s.cfg
	if err := a.apply(&cfg); err != nil {
		return nil, err
	}
	if a.Scale != 0 {
		cfg.Pyramid.Scale = a.Scale
	}
	if a.Step != 0 {
		cfg.Window.Step = a.Step
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	img, err := s.loadImage(a.pathArgs)
	if err != nil {
		return nil, err
	}
	classifier, labels, err := s.loadClassifier()
	if err != nil {
		return nil, err
	}

	det := &pipeline.SlidingWindowDetector{
		Classifier: classifier,
		Labels:     labels,
		Config:     cfg,
		Logger:     s.logger.WithFields(logrus.Fields{"detector": "sliding", "path": a.Path}),
	}
	res, err := det.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return s.buildDetectResult(res, a.detectArgs)
}
