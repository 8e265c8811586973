package surface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCardSurface renders an end-card: a QR code for a target URL centered on
// a dark background, fading in with progress. Markup form: "qr:<url>".
type QRCardSurface struct {
	width  int
	height int

	mu   sync.Mutex
	code image.Image
	vars Variables
}

// NewQRCardSurface returns a Factory producing end-card surfaces.
func NewQRCardSurface() Factory {
	return func(width, height int) (Surface, error) {
		return &QRCardSurface{width: width, height: height}, nil
	}
}

func (s *QRCardSurface) Load(ctx context.Context, markup string) error {
	url, ok := strings.CutPrefix(markup, "qr:")
	if !ok || url == "" {
		return fmt.Errorf("qr surface: unsupported markup %q", markup)
	}

	side := s.height / 2
	if s.width < s.height {
		side = s.width / 2
	}
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr surface: %w", err)
	}
	q.DisableBorder = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = q.Image(side)
	s.vars = Variables{}
	return nil
}

func (s *QRCardSurface) SetVariables(ctx context.Context, vars Variables) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == nil {
		return fmt.Errorf("no card loaded")
	}
	s.vars = vars
	return nil
}

func (s *QRCardSurface) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == nil {
		return nil, fmt.Errorf("no card loaded")
	}

	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bg := color.RGBA{R: 0x10, G: 0x12, B: 0x18, A: 0xff}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	// Fade the code in over the first half of the scene.
	alpha := easeInOutCubic(clamp01(s.vars.Progress * 2))
	mask := image.NewUniform(color.Alpha{A: uint8(alpha * 0xff)})

	cb := s.code.Bounds()
	offset := image.Pt(
		(s.width-cb.Dx())/2,
		(s.height-cb.Dy())/2,
	)
	draw.DrawMask(dst, cb.Add(offset).Sub(cb.Min), s.code, cb.Min, mask, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *QRCardSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = nil
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
