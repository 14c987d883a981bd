// Package classify picks the front and back shot of an item group.
//
// Edge detail is the deciding signal: printed fronts carry more texture than
// blank backs. The split point is the median of the group itself, so the
// decision adapts to each item's lighting instead of using an absolute cut.
package classify

import (
	"sort"

	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"gonum.org/v1/gonum/floats"
)

// Role is the part a photo plays in the output.
type Role string

const (
	RoleFront  Role = "front"
	RoleBack   Role = "back"
	RoleSide   Role = "side"
	RoleUnused Role = "unused"
)

// Config holds the classifier thresholds.
type Config struct {
	SideWidthThreshold      float64 `mapstructure:"side_width_threshold" yaml:"side_width_threshold" json:"side_width_threshold"`
	EdgeSimilarityThreshold float64 `mapstructure:"edge_similarity_threshold" yaml:"edge_similarity_threshold" json:"edge_similarity_threshold"`
}

// DefaultConfig returns the default classifier thresholds.
func DefaultConfig() Config {
	return Config{
		SideWidthThreshold:      0.35,
		EdgeSimilarityThreshold: 5,
	}
}

// Assignment is the outcome for one group.
type Assignment struct {
	Front *photo.Photo
	Back  *photo.Photo
	// Roles maps every source path in the group to its role.
	Roles map[string]Role
	// SingleSided is set when no photo scored below the split, either because
	// the edge scores were too close or because only two candidates remained.
	SingleSided bool
}

// Role returns the role assigned to p.
func (a Assignment) Role(p *photo.Photo) Role {
	if r, ok := a.Roles[p.SourcePath]; ok {
		return r
	}
	return RoleUnused
}

// Classify assigns roles to the photos of g.
func Classify(g grouping.Group, cfg Config) Assignment {
	a := Assignment{Roles: make(map[string]Role, len(g.Photos))}
	if len(g.Photos) == 0 {
		return a
	}

	var candidates []*photo.Photo
	for _, p := range g.Photos {
		if p.IsSideShot(cfg.SideWidthThreshold) {
			a.Roles[p.SourcePath] = RoleSide
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		// Only profiles were shot; use them rather than emit nothing.
		candidates = append(candidates, g.Photos...)
	}
	for _, p := range candidates {
		a.Roles[p.SourcePath] = RoleUnused
	}

	ranked := append([]*photo.Photo(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].EdgeScore > ranked[j].EdgeScore })

	if len(ranked) < 2 {
		a.Front = ranked[0]
		a.Roles[a.Front.SourcePath] = RoleFront
		return a
	}

	fronts, backs := split(ranked, cfg.EdgeSimilarityThreshold)
	a.SingleSided = len(backs) == 0

	a.Front = largest(fronts)
	a.Roles[a.Front.SourcePath] = RoleFront
	if b := largest(backs); b != nil {
		a.Back = b
		a.Roles[b.SourcePath] = RoleBack
	}
	return a
}

// split divides ranked (descending edge score) into front and back
// candidates at the median. When the spread of scores is below
// similarity all photos are fronts.
func split(ranked []*photo.Photo, similarity float64) (fronts, backs []*photo.Photo) {
	scores := make([]float64, len(ranked))
	for i, p := range ranked {
		scores[i] = p.EdgeScore
	}
	if floats.Max(scores)-floats.Min(scores) < similarity {
		return ranked, nil
	}

	m := median(scores)
	for _, p := range ranked {
		if p.EdgeScore >= m {
			fronts = append(fronts, p)
		} else {
			backs = append(backs, p)
		}
	}
	return fronts, backs
}

// median is the element at n/2 of scores sorted in descending order. For
// even n that is the lower of the middle pair, so a two-photo group always
// puts both photos in the front set and has no back.
func median(desc []float64) float64 {
	return desc[len(desc)/2]
}

// largest returns the photo with the greatest content area. Ties keep the
// earlier (higher edge score) photo.
func largest(ps []*photo.Photo) *photo.Photo {
	var best *photo.Photo
	for _, p := range ps {
		if best == nil || p.ContentAreaFraction > best.ContentAreaFraction {
			best = p
		}
	}
	return best
}
