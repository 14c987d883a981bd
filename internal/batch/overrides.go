package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"gopkg.in/yaml.v3"
)

// Overrides is a catalog file that pins the front and back photo of
// selected items:
//
//	items:
//	  - item: 3
//	    front: DSC_0102.jpg
//	    back: DSC_0105.jpg
//	  - item: 7
//	    back: none
//
// An omitted key keeps the automatic choice; "none" or "" drops the output.
type Overrides struct {
	Items []Override `yaml:"items"`
}

// Override pins the photos of one item. Photos are named by file name or by
// path relative to the input directory.
type Override struct {
	Item  int     `yaml:"item"`
	Front *string `yaml:"front"`
	Back  *string `yaml:"back"`
}

// LoadOverrides parses and validates an overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user supplied catalog file
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer func() { _ = f.Close() }()

	var o Overrides
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("overrides %s: %w", path, err)
	}
	return &o, nil
}

// Validate rejects non-positive and duplicate item numbers.
func (o *Overrides) Validate() error {
	seen := make(map[int]bool, len(o.Items))
	for _, it := range o.Items {
		if it.Item <= 0 {
			return fmt.Errorf("item index must be positive, got %d", it.Item)
		}
		if seen[it.Item] {
			return fmt.Errorf("item %d listed twice", it.Item)
		}
		seen[it.Item] = true
	}
	return nil
}

var errUnknownPhoto = errors.New("photo not found")

// Apply replaces the picks of the named items and returns a warning for
// every entry that could not be honored.
func (o *Overrides) Apply(items []Item, photos []*photo.Photo, inputDir string) []string {
	byName := make(map[string]*photo.Photo, 2*len(photos))
	for _, p := range photos {
		byName[p.Name()] = p
		if rel, err := filepath.Rel(inputDir, p.SourcePath); err == nil {
			byName[filepath.ToSlash(rel)] = p
		}
	}
	byIndex := make(map[int]*Item, len(items))
	for i := range items {
		byIndex[items[i].Index] = &items[i]
	}

	var warnings []string
	for _, ov := range o.Items {
		it, ok := byIndex[ov.Item]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("override for item %d: no such item", ov.Item))
			continue
		}
		for _, pick := range []struct {
			name *string
			role classify.Role
			slot **Output
		}{
			{ov.Front, classify.RoleFront, &it.Front},
			{ov.Back, classify.RoleBack, &it.Back},
		} {
			if pick.name == nil {
				continue
			}
			out, err := overrideOutput(*pick.name, pick.role, it, byName)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("override for item %d %s: %v", ov.Item, pick.role, err))
				continue
			}
			*pick.slot = out
			it.Overridden = true
		}
	}
	return warnings
}

func overrideOutput(name string, role classify.Role, it *Item, byName map[string]*photo.Photo) (*Output, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "none") {
		return nil, nil //nolint:nilnil // dropping the output is a valid override
	}
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownPhoto, name)
	}
	return it.naming.output(p, role, it.Index), nil
}
