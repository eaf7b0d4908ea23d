package models

// A11yIssueKind classifies an accessibility finding
type A11yIssueKind string

const (
	A11yMissingAlt    A11yIssueKind = "missing_alt"
	A11yHeadingSkip   A11yIssueKind = "heading_skip"
	A11yMissingLabel  A11yIssueKind = "missing_label"
	A11yEmptyLink     A11yIssueKind = "empty_link"
	A11yMissingLang   A11yIssueKind = "missing_lang"
	A11yMissingTitle  A11yIssueKind = "missing_title"
	A11yNoLandmarks   A11yIssueKind = "no_landmarks"
	A11yDuplicateMain A11yIssueKind = "duplicate_main"
)

// A11yIssue is one accessibility finding on a page
type A11yIssue struct {
	Kind    A11yIssueKind `json:"kind" validate:"required"`
	Tag     string        `json:"tag,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	Context string        `json:"context,omitempty"`
}

// AccessibilityRecord summarizes accessibility findings for one page.
// Counts cover the whole document; Issues lists individual findings.
type AccessibilityRecord struct {
	PageID           string      `json:"page_id" validate:"required,uuid"`
	ImageCount       int         `json:"image_count" validate:"gte=0"`
	ImagesMissingAlt int         `json:"images_missing_alt" validate:"gte=0"`
	InputCount       int         `json:"input_count" validate:"gte=0"`
	InputsLabeled    int         `json:"inputs_labeled" validate:"gte=0"`
	HeadingOutline   []int       `json:"heading_outline,omitempty"`
	Landmarks        []string    `json:"landmarks,omitempty"`
	Issues           []A11yIssue `json:"issues,omitempty" validate:"dive"`
	TreeBlobRef      string      `json:"tree_blob_ref,omitempty"`
}
