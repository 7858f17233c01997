package consult

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/medendorse/internal/agent"
)

var acceptedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// ImageAdapter accepts one image per case and submits it for analysis.
type ImageAdapter struct {
	proc     agent.Processor
	maxBytes int64
}

// NewImageAdapter creates an adapter that rejects images larger than maxBytes.
func NewImageAdapter(proc agent.Processor, maxBytes int64) *ImageAdapter {
	return &ImageAdapter{proc: proc, maxBytes: maxBytes}
}

// Submit stores an uploaded image and its preview. The previous image
// analysis and image error are cleared. No network call is made.
func (a *ImageAdapter) Submit(c *Case, fileName string, data []byte) (*PendingImage, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	if a.maxBytes > 0 && int64(len(data)) > a.maxBytes {
		return nil, ErrImageTooLarge
	}
	mimeType := http.DetectContentType(data)
	if !acceptedImageTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}

	img := &PendingImage{
		FileName:       fileName,
		MIMEType:       mimeType,
		Data:           data,
		PreviewDataURL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
	_ = c.mutate(func() error {
		c.image.pending = img
		c.image.loading = false
		c.image.err = ""
		c.image.seq++
		c.input.ImageAnalysis = ""
		return nil
	})
	return img, nil
}

// Analyze sends the pending image to the model and stores the analysis.
// A result for an image that was replaced meanwhile is discarded.
func (a *ImageAdapter) Analyze(ctx context.Context, c *Case) (string, error) {
	var img *PendingImage
	var seq uint64
	err := c.mutate(func() error {
		if c.image.pending == nil {
			return ErrNoImage
		}
		if c.image.loading {
			return ErrImageInFlight
		}
		c.image.loading = true
		c.image.err = ""
		img = c.image.pending
		seq = c.image.seq
		return nil
	})
	if err != nil {
		return "", err
	}

	analysis, callErr := a.proc.AnalyzeImage(agent.WithCaseID(ctx, c.ID), agent.ImageRequest{
		Data:        img.Data,
		MIMEType:    img.MIMEType,
		Instruction: imageInstruction,
	})

	_ = c.mutate(func() error {
		if c.image.seq != seq {
			return nil
		}
		c.image.loading = false
		if callErr != nil {
			c.image.err = msgImageFailed
			return nil
		}
		c.input.ImageAnalysis = analysis
		return nil
	})
	if callErr != nil {
		slog.Error("Image analysis failed", "case_id", c.ID, "error", callErr)
		return "", &ModelError{Message: msgImageFailed, Err: callErr}
	}
	return analysis, nil
}
