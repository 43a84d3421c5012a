package adapter

import "context"

// AssetKind names the payload types the avatar provider accepts.
type AssetKind string

const (
	AssetAudio AssetKind = "audio"
	AssetImage AssetKind = "image"
)

// RenderRequest combines uploaded asset handles with generation parameters.
type RenderRequest struct {
	AudioAssetID     string
	CharacterAssetID string
	Resolution       string
	AspectRatio      string
	Prompt           string
}

// AvatarProvider is the port for the avatar-rendering provider: asset
// registration, render submission and poll-based status. Callers must
// create an asset before uploading into it.
type AvatarProvider interface {
	CreateAsset(ctx context.Context, name string, kind AssetKind) (string, error)
	UploadAsset(ctx context.Context, assetID string, data []byte, filename string) error
	SubmitRender(ctx context.Context, req RenderRequest) (externalID string, err error)
	GetStatus(ctx context.Context, externalID string) (RenderStatus, error)
}
