package adapter

import (
	"context"

	"presenter-video-pipeline/internal/domain/model"
)

// CompositeRequest feeds the serverless render farm: the finished avatar
// clip plus the branded overlay inputs derived from the script.
type CompositeRequest struct {
	JobID    string
	VideoURL string
	Title    string
	Slides   []model.Slide
	Ticker   string
}

// CompositeHandle identifies a farm render; both fields are required to
// poll progress.
type CompositeHandle struct {
	RenderID string
	Bucket   string
}

// RenderFarm is the port for the compositing provider. Submission is
// rate-limited under load; callers wrap it in the shared retry policy.
type RenderFarm interface {
	SubmitComposite(ctx context.Context, req CompositeRequest) (CompositeHandle, error)
	GetProgress(ctx context.Context, handle CompositeHandle) (RenderStatus, error)
}
