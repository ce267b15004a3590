package models

import (
	"fmt"
	"strings"
)

// AssetKind selects the asset pipeline an upload goes through.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindFile  AssetKind = "file"
)

const (
	// ImageAssetType and FileAssetType are the _type values of stored asset documents.
	ImageAssetType = "sanity.imageAsset"
	FileAssetType  = "sanity.fileAsset"

	DefaultImageType = "image"
)

var validAssetKinds = map[AssetKind]struct{}{
	AssetKindImage: {},
	AssetKindFile:  {},
}

func IsValidAssetKind(kind AssetKind) bool {
	_, ok := validAssetKinds[kind]
	return ok
}

func ParseAssetKind(raw string) (AssetKind, error) {
	value := AssetKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("asset kind is required")
	}
	if !IsValidAssetKind(value) {
		return "", fmt.Errorf("invalid asset kind: %s", value)
	}
	return value, nil
}

// Endpoint returns the plural path segment used by the assets API.
func (k AssetKind) Endpoint() string {
	if k == AssetKindImage {
		return "images"
	}
	return "files"
}

// DocumentType returns the _type of asset documents created for this kind.
func (k AssetKind) DocumentType() string {
	if k == AssetKindImage {
		return ImageAssetType
	}
	return FileAssetType
}
