package batch

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/photo"
)

// Output is one planned catalog image.
type Output struct {
	Role   classify.Role `json:"role"`
	Source *photo.Photo  `json:"-"`
	File   string        `json:"file"`
	Path   string        `json:"path"`
}

// Item is one product: its photos, the classifier's decision and the
// outputs to produce.
type Item struct {
	Index      int                 `json:"index"`
	Group      grouping.Group      `json:"-"`
	Assignment classify.Assignment `json:"-"`
	Front      *Output             `json:"front,omitempty"`
	Back       *Output             `json:"back,omitempty"`
	// Overridden is set when the catalog file replaced the automatic picks.
	Overridden bool `json:"overridden,omitempty"`

	naming naming
}

// naming is what an output name is derived from.
type naming struct {
	outDir string
	prefix string
	format canvas.Format
}

func (n naming) output(src *photo.Photo, role classify.Role, index int) *Output {
	if src == nil {
		return nil
	}
	name := OutputName(n.prefix, index, role, n.format)
	return &Output{Role: role, Source: src, File: name, Path: filepath.Join(n.outDir, name)}
}

// Outputs returns the planned outputs, front first.
func (it *Item) Outputs() []*Output {
	var outs []*Output
	if it.Front != nil {
		outs = append(outs, it.Front)
	}
	if it.Back != nil {
		outs = append(outs, it.Back)
	}
	return outs
}

// RoleOf returns the final role of p, taking overrides into account.
func (it *Item) RoleOf(p *photo.Photo) classify.Role {
	for _, o := range it.Outputs() {
		if o.Source == p {
			return o.Role
		}
	}
	switch r := it.Assignment.Role(p); r {
	case classify.RoleFront, classify.RoleBack:
		return classify.RoleUnused
	default:
		return r
	}
}

// OutputName is the deterministic file name of an item's image.
func OutputName(prefix string, index int, role classify.Role, f canvas.Format) string {
	return fmt.Sprintf("%s-%03d-%s%s", prefix, index, role, f.Ext())
}

func planItems(groups []grouping.Group, assignments []classify.Assignment, outDir, prefix string, f canvas.Format) []Item {
	items := make([]Item, len(groups))
	for i, g := range groups {
		a := assignments[i]
		it := Item{Index: g.Index, Group: g, Assignment: a, naming: naming{outDir: outDir, prefix: prefix, format: f}}
		it.Front = it.naming.output(a.Front, classify.RoleFront, it.Index)
		it.Back = it.naming.output(a.Back, classify.RoleBack, it.Index)
		items[i] = it
	}
	return items
}

func canvasFormat(cfg *Config) (canvas.Format, error) {
	return canvas.ParseFormat(cfg.Canvas.Format)
}
