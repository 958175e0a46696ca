package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func limitProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of entries to return. Default 100",
		"default":     defaultLimit,
	}
}

func boxSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x1": map[string]interface{}{"type": "integer", "description": "Left edge (inclusive)"},
			"y1": map[string]interface{}{"type": "integer", "description": "Top edge (inclusive)"},
			"x2": map[string]interface{}{"type": "integer", "description": "Right edge (inclusive)"},
			"y2": map[string]interface{}{"type": "integer", "description": "Bottom edge (inclusive)"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}
}

// detectProperties are the overrides accepted by both detection tools.
func detectProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty(),
		"label": map[string]interface{}{
			"type":        "string",
			"description": "Class to detect. Defaults to the configured target label",
		},
		"min_proba": map[string]interface{}{
			"type":        "number",
			"description": "Minimum class probability (0-1). Default 0.99",
		},
		"overlap_thresh": map[string]interface{}{
			"type":        "number",
			"description": "IoU above which overlapping detections are suppressed (0-1). Default 0.3",
		},
		"annotate": map[string]interface{}{
			"type":        "boolean",
			"description": "Return the image with surviving boxes drawn as base64 PNG. Default true",
			"default":     true,
		},
		"include_before": map[string]interface{}{
			"type":        "boolean",
			"description": "Also return an annotated image of all boxes before non-max suppression",
			"default":     false,
		},
		"color": map[string]interface{}{
			"type":        "string",
			"description": "Box color for annotated images as #RRGGBB. Default #00ff00",
			"default":     "#00ff00",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	rcnnProps := detectProperties()
	rcnnProps["source"] = map[string]interface{}{
		"type":        "string",
		"description": "Proposal source: selective_search, edge_contours or text_words. Default selective_search",
		"enum":        []string{"selective_search", "edge_contours", "text_words"},
	}
	rcnnProps["mode"] = map[string]interface{}{
		"type":        "string",
		"description": "Selective search mode",
		"enum":        []string{"fast", "quality"},
	}
	rcnnProps["max_proposals"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of proposals to classify. Default 200",
	}
	rcnnProps["resize_width"] = map[string]interface{}{
		"type":        "integer",
		"description": "Working width the image is resized to before proposing. 0 keeps the original. Default 500",
	}

	slidingProps := detectProperties()
	slidingProps["scale"] = map[string]interface{}{
		"type":        "number",
		"description": "Pyramid downscale factor between levels (> 1). Default 1.5",
	}
	slidingProps["step"] = map[string]interface{}{
		"type":        "integer",
		"description": "Pixels between windows. Default 16",
	}

	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format. The image is cached for subsequent operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Multi-scale scanning
		{
			Name:        "image_pyramid",
			Description: "Build an image pyramid: the original followed by successively downscaled copies until the next level would fall below the minimum size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Downscale factor between levels (> 1). Default 1.5",
						"default":     1.5,
					},
					"min_width": map[string]interface{}{
						"type":        "integer",
						"description": "Smallest allowed level width. Default 224",
						"default":     224,
					},
					"min_height": map[string]interface{}{
						"type":        "integer",
						"description": "Smallest allowed level height. Default 224",
						"default":     224,
					},
					"include_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Return each level as base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_sliding_windows",
			Description: "List sliding window positions in row-major order. Windows touching the right or bottom edge are not produced; an image no larger than the window yields none.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"step": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels between windows. Default 16",
						"default":     16,
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Window width. Default 224",
						"default":     224,
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Window height. Default 224",
						"default":     224,
					},
					"limit": limitProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Box scoring
		{
			Name:        "box_iou",
			Description: "Compute the Intersection over Union of two boxes in inclusive pixel coordinates.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"box_a": boxSchema("First box"),
					"box_b": boxSchema("Second box"),
				},
				"required": []string{"box_a", "box_b"},
			},
		},
		{
			Name:        "boxes_filter",
			Description: "Filter scored boxes: drop those below min_proba, then apply greedy non-max suppression. Equal scores keep their input order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"boxes": map[string]interface{}{
						"type":        "array",
						"description": "Boxes with x1, y1, x2, y2, score and optional label",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"x1":    map[string]interface{}{"type": "integer"},
								"y1":    map[string]interface{}{"type": "integer"},
								"x2":    map[string]interface{}{"type": "integer"},
								"y2":    map[string]interface{}{"type": "integer"},
								"score": map[string]interface{}{"type": "number"},
								"label": map[string]interface{}{"type": "string"},
							},
							"required": []string{"x1", "y1", "x2", "y2", "score"},
						},
					},
					"min_proba": map[string]interface{}{
						"type":        "number",
						"description": "Minimum score (0-1). Default 0.99",
					},
					"overlap_thresh": map[string]interface{}{
						"type":        "number",
						"description": "IoU suppression threshold (0-1). Default 0.3",
					},
					"label": map[string]interface{}{
						"type":        "string",
						"description": "Keep only boxes with this label",
					},
				},
				"required": []string{"boxes"},
			},
		},

		// Region proposals
		{
			Name:        "image_selective_search",
			Description: "Propose object regions with selective search (graph segmentation plus hierarchical grouping). Boxes refer to the resized working image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"mode": map[string]interface{}{
						"type":        "string",
						"description": "fast (one segmentation) or quality (four scales plus texture). Default fast",
						"enum":        []string{"fast", "quality"},
						"default":     "fast",
					},
					"resize_width": map[string]interface{}{
						"type":        "integer",
						"description": "Working width. 0 keeps the original. Default 500",
					},
					"limit": limitProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_edge_proposals",
			Description: "Propose regions as the bounding boxes of connected edge contours.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"detector": map[string]interface{}{
						"type":        "string",
						"description": "Edge map to trace: gradient (luminance steps) or canny",
						"enum":        []string{"gradient", "canny"},
						"default":     "gradient",
					},
					"threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Gradient step (0-255) for the gradient detector. Default 30",
						"default":     30,
					},
					"threshold_low": map[string]interface{}{
						"type":        "integer",
						"description": "Canny weak edge threshold (0-255). Default 50",
						"default":     50,
					},
					"threshold_high": map[string]interface{}{
						"type":        "integer",
						"description": "Canny strong edge threshold (0-255). Default 150",
						"default":     150,
					},
					"min_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Discard contours with fewer edge pixels. Default 10",
						"default":     10,
					},
					"limit": limitProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_text_proposals",
			Description: "Propose text regions found by Tesseract OCR, with the recognized text and confidence.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Tesseract language code. Default eng",
						"default":     "eng",
					},
					"level": map[string]interface{}{
						"type":        "string",
						"description": "Region granularity",
						"enum":        []string{"word", "line", "block"},
						"default":     "word",
					},
					"min_confidence": map[string]interface{}{
						"type":        "number",
						"description": "Minimum OCR confidence (0-1). Default 0",
						"default":     0,
					},
					"limit": limitProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Detection
		{
			Name:        "image_detect_objects",
			Description: "Detect objects of one class: propose regions, classify each crop, keep confident hits and suppress overlaps. Returns boxes before and after suppression and an annotated image.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": rcnnProps,
				"required":   []string{"path"},
			},
		},
		{
			Name:        "image_detect_sliding",
			Description: "Detect objects of one class by classifying every sliding window over an image pyramid. Boxes are mapped back to the original image.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": slidingProps,
				"required":   []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
