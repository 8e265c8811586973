package config

import (
	"fmt"
)

// Format is one named output resolution. A project renders once per format.
type Format struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Duration is a scene's duration policy: either derived from synthesized
// audio length plus padding ("auto"), or a fixed number of seconds.
type Duration struct {
	Auto          bool
	Seconds       float64
	PaddingBefore float64
	PaddingAfter  float64
}

// BackgroundAudio references a music track mixed under the scene's voiceover.
type BackgroundAudio struct {
	Path   string  `yaml:"path"`
	Volume float64 `yaml:"volume"`
}

// FormatOverride carries per-format property replacements for a scene.
type FormatOverride struct {
	Props map[string]any `yaml:"props"`
}

// Scene is one timed segment of the output video.
type Scene struct {
	Template           string                    `yaml:"template"`
	Props              map[string]any            `yaml:"props"`
	Script             string                    `yaml:"script"`
	Duration           Duration                  `yaml:"duration"`
	TransitionIn       string                    `yaml:"transition_in"`
	TransitionOut      string                    `yaml:"transition_out"`
	TransitionDuration float64                   `yaml:"transition_duration"`
	Voice              string                    `yaml:"voice"`
	Audio              *BackgroundAudio          `yaml:"audio"`
	FormatOverrides    map[string]FormatOverride `yaml:"format_overrides"`
}

// VoiceConfig holds project-wide TTS settings.
type VoiceConfig struct {
	DefaultVoice     string  `yaml:"default_voice"`
	Speed            float64 `yaml:"speed"`
	PaddingBefore    float64 `yaml:"padding_before"`
	PaddingAfter     float64 `yaml:"padding_after"`
	FallbackDuration float64 `yaml:"fallback_duration"`
}

// Project is the validated, read-only input to the render engine.
type Project struct {
	Name                      string      `yaml:"name"`
	FPS                       int         `yaml:"fps"`
	Formats                   []Format    `yaml:"formats"`
	Scenes                    []Scene     `yaml:"scenes"`
	Voice                     VoiceConfig `yaml:"voice"`
	OutputDir                 string      `yaml:"output_dir"`
	DefaultTransition         string      `yaml:"default_transition"`
	DefaultTransitionDuration float64     `yaml:"default_transition_duration"`
	Quality                   int         `yaml:"quality"`
	Subtitles                 bool        `yaml:"subtitles"`
}

// ValidationError reports a malformed Project or Scene. It is fatal: no job
// is created from a project that fails validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid project: %s: %s", e.Field, e.Reason)
}

// Validate checks the model invariants. It performs no I/O and does not
// inspect props, which are opaque to the engine.
func (p *Project) Validate() error {
	if p.FPS <= 0 {
		return &ValidationError{Field: "fps", Reason: fmt.Sprintf("must be positive, got %d", p.FPS)}
	}
	if len(p.Formats) == 0 {
		return &ValidationError{Field: "formats", Reason: "at least one output format is required"}
	}
	names := make(map[string]bool, len(p.Formats))
	for i, f := range p.Formats {
		field := fmt.Sprintf("formats[%d]", i)
		if f.Name == "" {
			return &ValidationError{Field: field + ".name", Reason: "must not be empty"}
		}
		if names[f.Name] {
			return &ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate format %q", f.Name)}
		}
		names[f.Name] = true
		if f.Width <= 0 || f.Height <= 0 {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("dimensions must be positive, got %dx%d", f.Width, f.Height)}
		}
	}
	if len(p.Scenes) == 0 {
		return &ValidationError{Field: "scenes", Reason: "at least one scene is required"}
	}
	for i, s := range p.Scenes {
		field := fmt.Sprintf("scenes[%d]", i)
		if s.Template == "" {
			return &ValidationError{Field: field + ".template", Reason: "must not be empty"}
		}
		if !s.Duration.Auto && s.Duration.Seconds <= 0 {
			return &ValidationError{Field: field + ".duration", Reason: fmt.Sprintf("explicit duration must be positive, got %g", s.Duration.Seconds)}
		}
		if s.Duration.PaddingBefore < 0 || s.Duration.PaddingAfter < 0 {
			return &ValidationError{Field: field + ".duration", Reason: "padding must not be negative"}
		}
		if s.TransitionDuration < 0 {
			return &ValidationError{Field: field + ".transition_duration", Reason: "must not be negative"}
		}
		if s.Audio != nil {
			if s.Audio.Path == "" {
				return &ValidationError{Field: field + ".audio.path", Reason: "must not be empty"}
			}
			if s.Audio.Volume < 0 || s.Audio.Volume > 1 {
				return &ValidationError{Field: field + ".audio.volume", Reason: fmt.Sprintf("must be in [0,1], got %g", s.Audio.Volume)}
			}
		}
		for name := range s.FormatOverrides {
			if !names[name] {
				return &ValidationError{Field: field + ".format_overrides", Reason: fmt.Sprintf("unknown format %q", name)}
			}
		}
	}
	return nil
}

// ForFormat returns a copy of the scene with the format's prop overrides
// merged in. Scenes without an override for the format are returned as-is.
func (s Scene) ForFormat(name string) Scene {
	ov, ok := s.FormatOverrides[name]
	if !ok || len(ov.Props) == 0 {
		return s
	}
	props := make(map[string]any, len(s.Props)+len(ov.Props))
	for k, v := range s.Props {
		props[k] = v
	}
	for k, v := range ov.Props {
		props[k] = v
	}
	s.Props = props
	return s
}

// ResolveTransition picks the transition between scene out (exiting) and
// scene in (entering). Priority: out's exit, then in's entry, then the
// project default. Duration follows the same priority chain.
func (p *Project) ResolveTransition(out, in Scene) (name string, duration float64) {
	name = out.TransitionOut
	if name == "" {
		name = in.TransitionIn
	}
	if name == "" {
		name = p.DefaultTransition
	}
	duration = out.TransitionDuration
	if duration == 0 {
		duration = in.TransitionDuration
	}
	if duration == 0 {
		duration = p.DefaultTransitionDuration
	}
	return name, duration
}
