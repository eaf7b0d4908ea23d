package models

// AssetType classifies a referenced resource
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetAudio AssetType = "audio"
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetFont  AssetType = "font"
	AssetOther AssetType = "other"
)

// AssetRecord is a media or subresource reference discovered on a page
type AssetRecord struct {
	PageID      string    `json:"page_id" validate:"required,uuid"`
	URL         string    `json:"url" validate:"required"`
	Type        AssetType `json:"type" validate:"required,oneof=image video audio css js font other"`
	Alt         string    `json:"alt,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	Size        int64     `json:"size,omitempty" validate:"gte=0"`
	BodyBlobRef string    `json:"body_blob_ref,omitempty"`
}
