package remote

import (
	"context"

	"github.com/denster32/dogtv-datacore/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/remote_mock.go -package=mock

// PullResult is the replica's answer to a pull: every change recorded after
// the requested cursor plus the cursor to resume from next time.
type PullResult struct {
	Changes []models.ChangeEnvelope `json:"changes"`
	Next    models.SyncCursor       `json:"next"`
}

// Replica is the abstract remote data service participating in
// synchronization. The core consumes this boundary only; the bundled HTTP
// adapter and in-memory replica are conveniences for integrators and tests.
type Replica interface {
	// Pull returns all changes recorded after since. A zero cursor pulls
	// from the beginning of history.
	Pull(ctx context.Context, since models.SyncCursor) (PullResult, error)

	// Push offers local changes to the replica and returns one Ack per
	// envelope. Record-level rejections (stale versions) are reported in
	// the Ack, not as an error.
	Push(ctx context.Context, changes []models.ChangeEnvelope) ([]models.Ack, error)
}
