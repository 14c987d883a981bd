package batch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/classify"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteReport prints the per-item decisions, the way a dry run shows them.
func WriteReport(w io.Writer, res *Result) error {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	var sb strings.Builder
	for _, it := range res.Items {
		p.Fprintf(&sb, "Item %03d  photos %s (%d)", it.Index, it.Group.Range(), len(it.Group.Photos))
		if it.Assignment.SingleSided {
			sb.WriteString("  single-sided")
		}
		if it.Overridden {
			sb.WriteString("  [override]")
		}
		sb.WriteString("\n")
		for _, role := range []classify.Role{classify.RoleFront, classify.RoleBack} {
			out := it.Front
			if role == classify.RoleBack {
				out = it.Back
			}
			if out == nil {
				fmt.Fprintf(&sb, "  %-6s -\n", title.String(string(role)))
				continue
			}
			fmt.Fprintf(&sb, "  %-6s %s -> %s\n", title.String(string(role)), out.Source.Name(), out.File)
		}
		for _, ph := range it.Group.Photos {
			if r := it.RoleOf(ph); r == classify.RoleSide {
				p.Fprintf(&sb, "  side   %s (width %.2f)\n", ph.Name(), ph.WidthFraction)
			}
		}
	}
	for _, f := range res.Failures {
		fmt.Fprintf(&sb, "FAILED %s (%s): %s\n", f.Path, f.Stage, f.Err)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(&sb, "WARNING %s\n", warn)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteSummary prints the run counters.
func WriteSummary(w io.Writer, res *Result) error {
	p := message.NewPrinter(language.English)
	s := res.Summary

	var sb strings.Builder
	if res.DryRun {
		sb.WriteString("Dry run, nothing written.\n")
	}
	p.Fprintf(&sb, "Photos:   %d (%d analyzed, %d cached, %d failed)\n", s.Photos, s.Analyzed, s.Cached, s.FailedPhotos)
	p.Fprintf(&sb, "Items:    %d, %d outputs\n", s.Items, s.Outputs)
	if !res.DryRun {
		p.Fprintf(&sb, "Outputs:  %d written, %d skipped, %d failed, %d fallbacks\n", s.Written, s.Skipped, s.Failed, s.Fallbacks)
		p.Fprintf(&sb, "Decodes:  %d, encodes: %d\n", s.Decodes, s.Encodes)
	}
	if r := res.Render; r != nil && r.Total > 0 {
		p.Fprintf(&sb, "Render:   %.1f outputs/s on %d workers\n", r.ThroughputPerSec, r.Workers)
	}
	if res.MappingPath != "" {
		fmt.Fprintf(&sb, "Mapping:  %s\n", res.MappingPath)
	}
	if res.ProofPath != "" {
		fmt.Fprintf(&sb, "Proof:    %s\n", res.ProofPath)
	}
	fmt.Fprintf(&sb, "Duration: %v\n", res.Duration.Round(time.Millisecond))
	_, err := io.WriteString(w, sb.String())
	return err
}
