package domain

import (
	"context"
	"strings"
)

// ImageGenerator turns a text prompt into a GenerationResult.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*GenerationResult, error)
	Name() string
}

type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one element of a generation response, either a text fragment or
// inline binary data.
type Part struct {
	Kind     PartKind
	Text     string
	MIMEType string
	Data     []byte
}

// GenerationResult holds the accumulated text and the first image produced
// for a prompt. Either field may be empty.
type GenerationResult struct {
	Text      string
	Image     []byte
	ImageMIME string
}

func (r *GenerationResult) HasImage() bool {
	return r != nil && len(r.Image) > 0
}

// CollectParts folds an ordered list of parts into a GenerationResult.
// Every text fragment is appended followed by a newline; only the first
// image part is kept.
func CollectParts(parts []Part) *GenerationResult {
	var sb strings.Builder
	res := &GenerationResult{}
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		case PartImage:
			if res.Image == nil && len(p.Data) > 0 {
				res.Image = p.Data
				res.ImageMIME = p.MIMEType
			}
		}
	}
	res.Text = sb.String()
	return res
}
