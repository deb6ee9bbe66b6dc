package registry

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// fileConfig is the on-disk form of a registry:
//
//	[[relationship]]
//	name = "quotes"
//	principal = "company"
//	dependent = "quote"
//	foreign_key = "company_id"
type fileConfig struct {
	Relationships []model.Relationship `toml:"relationship"`
}

// LoadFile reads a TOML relationship file and builds a Registry from it.
func LoadFile(path string) (*Registry, error) {
	var cfg fileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	reg, err := New(cfg.Relationships...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a Registry from TOML text.
func Parse(data string) (*Registry, error) {
	var cfg fileConfig
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode relationships: unknown keys %v", undecoded)
	}
	return New(cfg.Relationships...)
}
