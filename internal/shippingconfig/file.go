// Package shippingconfig loads the admin shipping configuration (zones with
// their methods and weight brackets) from YAML and writes it through the
// shipping repository.
package shippingconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type File struct {
	Version  string `yaml:"version"`
	Currency string `yaml:"currency"`
	Zones    []Zone `yaml:"zones"`
}

type Zone struct {
	ID        string   `yaml:"id,omitempty"`
	Name      string   `yaml:"name"`
	Countries []string `yaml:"countries"`
	Active    *bool    `yaml:"active,omitempty"`
	Methods   []Method `yaml:"methods"`
}

// Method amounts are strings so that no float parsing happens on money.
type Method struct {
	ID                    string    `yaml:"id,omitempty"`
	Name                  string    `yaml:"name"`
	Currency              string    `yaml:"currency,omitempty"`
	BaseCost              string    `yaml:"base_cost,omitempty"`
	CostPerKg             string    `yaml:"cost_per_kg,omitempty"`
	FreeShippingThreshold string    `yaml:"free_shipping_threshold,omitempty"`
	MinWeight             string    `yaml:"min_weight,omitempty"`
	MaxWeight             string    `yaml:"max_weight,omitempty"`
	Brackets              []Bracket `yaml:"brackets,omitempty"`
	DeliveryEstimate      string    `yaml:"delivery_estimate,omitempty"`
	SortOrder             int       `yaml:"sort_order,omitempty"`
	Active                *bool     `yaml:"active,omitempty"`
}

type Bracket struct {
	Min  string `yaml:"min"`
	Max  string `yaml:"max,omitempty"` // empty means unbounded
	Cost string `yaml:"cost"`
}

// LoadFile loads and parses a YAML shipping configuration file from the given path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipping config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML data into a File.
func Parse(data []byte) (*File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("shipping config is empty")
		}
		return nil, fmt.Errorf("failed to parse shipping config YAML: %w", err)
	}

	applyDefaults(&f)

	return &f, nil
}

// Marshal serializes a File to YAML.
func Marshal(f *File) ([]byte, error) {
	return yaml.Marshal(f)
}

func applyDefaults(f *File) {
	if f.Version == "" {
		f.Version = "1"
	}
	if f.Currency == "" {
		f.Currency = "EUR"
	}

	for i := range f.Zones {
		z := &f.Zones[i]
		if z.Active == nil {
			z.Active = boolPtr(true)
		}

		for j := range z.Methods {
			m := &z.Methods[j]
			if m.Currency == "" {
				m.Currency = f.Currency
			}
			if m.BaseCost == "" {
				m.BaseCost = "0"
			}
			if m.CostPerKg == "" {
				m.CostPerKg = "0"
			}
			if m.Active == nil {
				m.Active = boolPtr(true)
			}
		}
	}
}

func boolPtr(b bool) *bool { return &b }
