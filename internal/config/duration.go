package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts "auto", a bare number of seconds, or a "5s"/"2.5s"
// suffix form. Padding is filled in by the loader from the project voice
// config; scene files only pick the policy.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected \"auto\" or a number, got %s", node.Tag)
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" || strings.EqualFold(raw, "auto") {
		*d = Duration{Auto: true}
		return nil
	}
	raw = strings.TrimSuffix(raw, "s")
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("duration: expected \"auto\" or a number, got %q", node.Value)
	}
	*d = Duration{Seconds: secs}
	return nil
}

// MarshalYAML emits "auto" or the number of seconds.
func (d Duration) MarshalYAML() (any, error) {
	if d.Auto {
		return "auto", nil
	}
	return d.Seconds, nil
}
