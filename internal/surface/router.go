package surface

import (
	"context"
	"fmt"
	"strings"
)

// Dispatch returns a Factory whose surfaces pick a concrete binding by the
// markup scheme (the part before the first colon) at Load time.
func Dispatch(routes map[string]Factory) Factory {
	return func(width, height int) (Surface, error) {
		return &routerSurface{routes: routes, width: width, height: height}, nil
	}
}

type routerSurface struct {
	routes map[string]Factory
	width  int
	height int
	inner  Surface
}

func (s *routerSurface) Load(ctx context.Context, markup string) error {
	scheme, _, ok := strings.Cut(markup, ":")
	if !ok {
		return fmt.Errorf("markup %q has no scheme", markup)
	}
	factory, ok := s.routes[scheme]
	if !ok {
		return fmt.Errorf("no surface binding for scheme %q", scheme)
	}
	if s.inner != nil {
		s.inner.Close()
		s.inner = nil
	}
	inner, err := factory(s.width, s.height)
	if err != nil {
		return err
	}
	if err := inner.Load(ctx, markup); err != nil {
		inner.Close()
		return err
	}
	s.inner = inner
	return nil
}

func (s *routerSurface) SetVariables(ctx context.Context, vars Variables) error {
	if s.inner == nil {
		return fmt.Errorf("no markup loaded")
	}
	return s.inner.SetVariables(ctx, vars)
}

func (s *routerSurface) CaptureFrame(ctx context.Context) ([]byte, error) {
	if s.inner == nil {
		return nil, fmt.Errorf("no markup loaded")
	}
	return s.inner.CaptureFrame(ctx)
}

func (s *routerSurface) Close() error {
	if s.inner == nil {
		return nil
	}
	err := s.inner.Close()
	s.inner = nil
	return err
}
