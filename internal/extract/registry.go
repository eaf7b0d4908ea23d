package extract

import (
	"sort"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// Registry holds the extractor set for a crawl
type Registry struct {
	extractors []interfaces.Extractor
}

// NewRegistry builds a registry over an explicit extractor list
func NewRegistry(extractors ...interfaces.Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry returns the built-in extractor set for a render mode
func DefaultRegistry(mode interfaces.RenderMode) *Registry {
	return NewRegistry(
		NewPageExtractor(),
		NewLinkExtractor(mode),
		NewAssetExtractor(),
		NewAccessibilityExtractor(),
	)
}

// Enabled returns the extractors whose declared capabilities intersect
// the profile. An empty profile enables everything.
func (r *Registry) Enabled(profile []string) []interfaces.Extractor {
	if len(profile) == 0 {
		return append([]interfaces.Extractor(nil), r.extractors...)
	}
	want := make(map[string]bool, len(profile))
	for _, cap := range profile {
		want[cap] = true
	}

	var enabled []interfaces.Extractor
	for _, ex := range r.extractors {
		for _, cap := range ex.Capabilities() {
			if want[cap] {
				enabled = append(enabled, ex)
				break
			}
		}
	}
	return enabled
}

// Datasets returns the sorted union of datasets the given extractors
// write to
func Datasets(extractors []interfaces.Extractor) []string {
	set := make(map[string]bool)
	for _, ex := range extractors {
		for _, ds := range ex.Datasets() {
			set[ds] = true
		}
	}
	out := make([]string, 0, len(set))
	for ds := range set {
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}

// DeriveCapabilities computes the archive capability set from the
// enabled extractors, the render mode, and the replay configuration.
// Capabilities are derived, never declared by the user.
func DeriveCapabilities(extractors []interfaces.Extractor, mode interfaces.RenderMode, replayTier string, replayBlobs bool) []string {
	set := make(map[string]bool)
	for _, ex := range extractors {
		for _, cap := range ex.Capabilities() {
			set[cap] = true
		}
	}

	if mode != interfaces.ModeRaw {
		set[models.CapRenderDOM] = true
	}

	// Replay capabilities require the bodies to actually be in the
	// archive's blob store.
	if replayBlobs {
		switch replayTier {
		case "full":
			set[models.CapReplayImages] = true
			set[models.CapReplayCSS] = true
			set[models.CapReplayHTML] = true
		case "html+css":
			set[models.CapReplayCSS] = true
			set[models.CapReplayHTML] = true
		case "html":
			set[models.CapReplayHTML] = true
		}
	}

	out := make([]string, 0, len(set))
	for cap := range set {
		out = append(out, cap)
	}
	sort.Strings(out)
	return out
}
