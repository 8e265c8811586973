package surface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	xdraw "golang.org/x/image/draw"
)

// pdfZoomPeak is the Ken Burns zoom reached at progress 1.0.
const pdfZoomPeak = 1.08

// PDFSurface renders a page of a PDF document as the scene visual, with a
// progress-driven zoom so slide scenes are not static. Markup form:
// "pdf:<path>#<page>" (page is 0-based, defaults to 0).
type PDFSurface struct {
	width  int
	height int
	dpi    int

	mu   sync.Mutex
	doc  *fitz.Document
	page int
	vars Variables
	// base is the page rendered once at load; captures crop and scale it.
	base image.Image
}

// NewPDFSurface returns a Factory producing PDF surfaces at the given DPI.
func NewPDFSurface(dpi int) Factory {
	if dpi <= 0 {
		dpi = 150
	}
	return func(width, height int) (Surface, error) {
		return &PDFSurface{width: width, height: height, dpi: dpi}, nil
	}
}

func (s *PDFSurface) Load(ctx context.Context, markup string) error {
	path, page, err := parsePDFMarkup(markup)
	if err != nil {
		return err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if page >= doc.NumPage() {
		doc.Close()
		return fmt.Errorf("page %d out of range (%s has %d pages)", page, path, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, float64(s.dpi))
	if err != nil {
		doc.Close()
		return fmt.Errorf("render page %d of %s: %w", page, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		s.doc.Close()
	}
	s.doc = doc
	s.page = page
	s.base = img
	s.vars = Variables{}
	return nil
}

func (s *PDFSurface) SetVariables(ctx context.Context, vars Variables) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return fmt.Errorf("no document loaded")
	}
	s.vars = vars
	return nil
}

func (s *PDFSurface) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return nil, fmt.Errorf("no document loaded")
	}

	zoom := lerp(1.0, pdfZoomPeak, easeInOutCubic(s.vars.Progress))
	src := centerCrop(s.base, zoom, float64(s.width)/float64(s.height))

	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), s.base, src, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *PDFSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		err := s.doc.Close()
		s.doc = nil
		s.base = nil
		return err
	}
	return nil
}

// centerCrop picks the source rectangle for the given zoom level, matching
// the target aspect ratio and centered on the page.
func centerCrop(img image.Image, zoom, aspect float64) image.Rectangle {
	b := img.Bounds()
	w := float64(b.Dx()) / zoom
	h := w / aspect
	if h > float64(b.Dy())/zoom {
		h = float64(b.Dy()) / zoom
		w = h * aspect
	}
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	return image.Rect(
		int(cx-w/2), int(cy-h/2),
		int(cx+w/2), int(cy+h/2),
	)
}

func parsePDFMarkup(markup string) (path string, page int, err error) {
	rest, ok := strings.CutPrefix(markup, "pdf:")
	if !ok {
		return "", 0, fmt.Errorf("pdf surface: unsupported markup %q", markup)
	}
	path = rest
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		path = rest[:i]
		page, err = strconv.Atoi(rest[i+1:])
		if err != nil || page < 0 {
			return "", 0, fmt.Errorf("pdf surface: bad page reference in %q", markup)
		}
	}
	if path == "" {
		return "", 0, fmt.Errorf("pdf surface: empty path in %q", markup)
	}
	return path, page, nil
}
