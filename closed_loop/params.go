package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"carctrl-core/closed_loop/carcontroller"
)

// carEntry is one model in the calibration file.
type carEntry struct {
	Generation                  string `yaml:"generation"`
	carcontroller.LimiterConfig `yaml:",inline"`
}

type carsFile struct {
	Cars map[string]carEntry `yaml:"cars"`
}

// LoadCarParams reads the calibration file and returns the validated
// params of one model.
func LoadCarParams(path, model string) (carcontroller.CarParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return carcontroller.CarParams{}, fmt.Errorf("read file: %w", err)
	}
	p, err := ParseCarParams(data, model)
	if err != nil {
		return carcontroller.CarParams{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func ParseCarParams(data []byte, model string) (carcontroller.CarParams, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f carsFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return carcontroller.CarParams{}, fmt.Errorf("unmarshal: %w", err)
	}

	entry, ok := f.Cars[model]
	if !ok {
		known := make([]string, 0, len(f.Cars))
		for k := range f.Cars {
			known = append(known, k)
		}
		sort.Strings(known)
		return carcontroller.CarParams{}, fmt.Errorf("unknown car %q (available: %v)", model, known)
	}

	gen, err := carcontroller.ParseGeneration(entry.Generation)
	if err != nil {
		return carcontroller.CarParams{}, fmt.Errorf("car %q: %w", model, err)
	}

	p := carcontroller.CarParams{
		Model:      model,
		Generation: gen,
		Limits:     entry.LimiterConfig,
	}
	if err := p.Validate(); err != nil {
		return carcontroller.CarParams{}, err
	}
	return p, nil
}
