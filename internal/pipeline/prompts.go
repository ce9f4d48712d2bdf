package pipeline

import (
	_ "embed"
)

//go:embed correct.tmpl
var correctPrompt string

//go:embed htmlify.tmpl
var htmlifyPrompt string

//go:embed segment.tmpl
var segmentPrompt string

// CorrectPrompt returns the system prompt for the OCR correction stage.
func CorrectPrompt() string { return correctPrompt }

// HTMLifyPrompt returns the system prompt for the HTML markup stage.
func HTMLifyPrompt() string { return htmlifyPrompt }

// SegmentPrompt returns the system prompt for the segmentation stage.
func SegmentPrompt() string { return segmentPrompt }
