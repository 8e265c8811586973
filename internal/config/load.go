package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a project document. Padding defaults from the
// voice config are copied onto every auto-duration scene so the engine never
// consults project-level settings while resolving a single scene.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML project document and validates it.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	applyDefaults(&p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func applyDefaults(p *Project) {
	if p.FPS == 0 {
		p.FPS = 30
	}
	if p.OutputDir == "" {
		p.OutputDir = "output"
	}
	if p.Voice.Speed == 0 {
		p.Voice.Speed = 1.0
	}
	if p.Voice.FallbackDuration == 0 {
		p.Voice.FallbackDuration = 3.0
	}
	if p.Quality == 0 {
		p.Quality = 23
	}
	for i := range p.Scenes {
		s := &p.Scenes[i]
		if s.Duration.Auto {
			if s.Duration.PaddingBefore == 0 {
				s.Duration.PaddingBefore = p.Voice.PaddingBefore
			}
			if s.Duration.PaddingAfter == 0 {
				s.Duration.PaddingAfter = p.Voice.PaddingAfter
			}
		}
		if s.Audio != nil && s.Audio.Volume == 0 {
			s.Audio.Volume = 0.3
		}
	}
}
