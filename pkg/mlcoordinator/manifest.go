package mlcoordinator

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlwire"
	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

// parseManifestMessage decodes a response_manifest message's sole argument
// (JSON, spec.md §6) into a Manifest.
func parseManifestMessage(msg mlwire.Message) (*mlmanifest.Manifest, error) {
	if msg.Cmd != mlwire.CmdResponseManifest || len(msg.Args) == 0 {
		return nil, ErrUnexpectedMessage.Wrapf("expected %s with one arg, got %s", mlwire.CmdResponseManifest, msg.Cmd)
	}
	return mlmanifest.UnmarshalManifestJSON([]byte(msg.Args[0]))
}

func newWorkerHandle(id string, manifest *mlmanifest.Manifest) *mlworkerpool.WorkerHandle {
	return &mlworkerpool.WorkerHandle{ID: id, LastManifest: manifest, Position: -1}
}

// hashPayload derives a short content fingerprint for result bookkeeping
// where the coordinator itself (not VCS) needs a stable identifier, e.g.
// recording a dataset fetch's output hash before any worker is involved.
func hashPayload(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
