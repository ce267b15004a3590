package models

// Asset is the metadata record returned by the assets upload endpoint.
type Asset struct {
	ID               string `json:"_id"`
	Type             string `json:"_type"`
	URL              string `json:"url,omitempty"`
	Path             string `json:"path,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	MimeType         string `json:"mimeType,omitempty"`
	Extension        string `json:"extension,omitempty"`
	Size             int64  `json:"size"`
	SHA1Hash         string `json:"sha1hash,omitempty"`
	AssetID          string `json:"assetId,omitempty"`
	CreatedAt        string `json:"_createdAt,omitempty"`
}
