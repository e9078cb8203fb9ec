// Package lineup loads the channel lineup file: which channel numbers exist
// per device class and which network each carries. The lineup is optional;
// without one, channel numbers on incoming allocations are accepted as-is.
package lineup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
)

// Entry describes one channel in the lineup.
type Entry struct {
	Channel string `yaml:"channel"`
	Network string `yaml:"network"`
	HD      bool   `yaml:"hd"`
}

// Lineup maps device classes to their channel entries.
type Lineup struct {
	Classes map[models.DeviceClass][]Entry `yaml:"classes"`
}

// Load reads a lineup YAML file.
func Load(path string) (*Lineup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lineup file: %w", err)
	}
	var l Lineup
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lineup file: %w", err)
	}
	return &l, nil
}

// HasChannel reports whether the channel exists for the device class.
func (l *Lineup) HasChannel(class models.DeviceClass, channel string) bool {
	for _, e := range l.Classes[class] {
		if e.Channel == channel {
			return true
		}
	}
	return false
}

// Network returns the network carried on a channel, or "" if unknown.
func (l *Lineup) Network(class models.DeviceClass, channel string) string {
	for _, e := range l.Classes[class] {
		if e.Channel == channel {
			return e.Network
		}
	}
	return ""
}
