package models

// DOMLocation is a coarse classification of where in the document a link
// was discovered
type DOMLocation string

const (
	LocationNav    DOMLocation = "nav"
	LocationHeader DOMLocation = "header"
	LocationFooter DOMLocation = "footer"
	LocationMain   DOMLocation = "main"
	LocationOther  DOMLocation = "other"
)

// EdgeRecord is a directed link from a source page to a target URL.
// DOMOrder preserves discovery order within the source page.
type EdgeRecord struct {
	SourcePageID string      `json:"source_page_id" validate:"required,uuid"`
	TargetURL    string      `json:"target_url" validate:"required"`
	TargetPageID string      `json:"target_page_id,omitempty" validate:"omitempty,uuid"`
	AnchorText   string      `json:"anchor_text,omitempty"`
	Rel          string      `json:"rel,omitempty"`
	Internal     bool        `json:"internal"`
	Location     DOMLocation `json:"location" validate:"required,oneof=nav header footer main other"`
	RenderMode   string      `json:"render_mode" validate:"required,oneof=raw prerender full"`
	DOMOrder     int         `json:"dom_order" validate:"gte=0"`
}
