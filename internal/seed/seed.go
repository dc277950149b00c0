// Package seed loads a network description from YAML and applies it through
// the regular create and attach operations, so every seeded section passes
// the same path checks as an API call.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"line-topology/internal/network"
	"line-topology/internal/topology"
)

type Network struct {
	Stations []Station `yaml:"stations" validate:"dive"`
	Lines    []Line    `yaml:"lines" validate:"dive"`
}

type Station struct {
	Name string `yaml:"name" validate:"required"`
}

type Line struct {
	network.Line `yaml:",inline"`
	Sections     []Section `yaml:"sections" validate:"dive"`
}

// Section refers to stations by name, in head to tail order.
type Section struct {
	From        string  `yaml:"from" validate:"required"`
	To          string  `yaml:"to" validate:"required,nefield=From"`
	Distance    float64 `yaml:"distance" validate:"gt=0"`
	ElapsedTime float64 `yaml:"elapsedTime" validate:"gte=0"`
}

// Target receives the seeded records.
type Target interface {
	CreateStation(ctx context.Context, name string) (network.Station, error)
	CreateLine(ctx context.Context, l network.Line) (network.Line, error)
	AttachSection(ctx context.Context, lineID, sourceID, targetID int64, distance, elapsedTime float64) (topology.Section, []int64, error)
}

func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Network, error) {
	var n Network
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&n); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := validator.New().Struct(n); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	seen := make(map[string]bool, len(n.Stations))
	for _, s := range n.Stations {
		if seen[s.Name] {
			return nil, fmt.Errorf("invalid seed: station %q listed twice", s.Name)
		}
		seen[s.Name] = true
	}
	for _, l := range n.Lines {
		for _, sec := range l.Sections {
			for _, name := range []string{sec.From, sec.To} {
				if !seen[name] {
					return nil, fmt.Errorf("invalid seed: line %q references unknown station %q", l.Name, name)
				}
			}
		}
	}
	return &n, nil
}

// Apply creates the stations and lines and attaches each line's sections in
// order. It returns the created station ids by name.
func (n *Network) Apply(ctx context.Context, t Target) (map[string]int64, error) {
	ids := make(map[string]int64, len(n.Stations))
	for _, s := range n.Stations {
		st, err := t.CreateStation(ctx, s.Name)
		if err != nil {
			return nil, fmt.Errorf("seed station %q: %w", s.Name, err)
		}
		ids[s.Name] = st.ID
	}
	for _, l := range n.Lines {
		line, err := t.CreateLine(ctx, l.Line)
		if err != nil {
			return nil, fmt.Errorf("seed line %q: %w", l.Name, err)
		}
		for i, sec := range l.Sections {
			if _, _, err := t.AttachSection(ctx, line.ID, ids[sec.From], ids[sec.To], sec.Distance, sec.ElapsedTime); err != nil {
				return nil, fmt.Errorf("seed line %q section %d (%s-%s): %w", l.Name, i, sec.From, sec.To, err)
			}
		}
	}
	return ids, nil
}
