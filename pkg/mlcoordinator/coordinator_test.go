package mlcoordinator

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlscheduler"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
	"github.com/virtengine/mlpipe/pkg/mlstorage"
	"github.com/virtengine/mlpipe/pkg/mlvcs"
	"github.com/virtengine/mlpipe/pkg/mlwire"
	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

type chanListener struct {
	ch chan io.ReadWriteCloser
}

func (l *chanListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case c := <-l.ch:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pipeLauncher simulates the opaque external worker process: for every
// Launch it spins up an in-memory net.Pipe, hands the server half to the
// listener channel (as if the worker process had dialed back in), and
// drives the client half through the manifest handshake plus one
// execute/done round trip per message it receives.
type pipeLauncher struct {
	listenerCh chan io.ReadWriteCloser
	launches   int
}

func (l *pipeLauncher) Launch(ctx context.Context, c mlscheduler.Component) error {
	l.launches++
	client, server := net.Pipe()
	l.listenerCh <- server

	go func() {
		conn := mlwire.NewConn(client, client)
		manifest, err := mlmanifest.NewManifest(c.Key.Name, c.Key.Type, c.Key.Version, nil, false)
		if err != nil {
			return
		}
		body, err := manifest.MarshalManifestJSON()
		if err != nil {
			return
		}
		senderID := "w-" + c.Key.Name
		hello, err := mlwire.New(senderID, mlwire.CmdResponseManifest, string(body))
		if err != nil {
			return
		}
		if err := conn.WriteMessage(hello); err != nil {
			return
		}
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msg.Cmd {
			case mlwire.CmdExecute:
				done, err := mlwire.New(senderID, mlwire.CmdDone, msg.Args[0])
				if err != nil {
					return
				}
				if err := conn.WriteMessage(done); err != nil {
					return
				}
			case mlwire.CmdExit:
				return
			}
		}
	}()
	return nil
}

func datasetKey(name string) mlsemver.MetaKey {
	return mlsemver.MetaKey{Type: mlsemver.ComponentDataset, Name: name, Version: mlsemver.SemanticVersion{Branch: "master"}}
}

func libraryKey(name string) mlsemver.MetaKey {
	return mlsemver.MetaKey{Type: mlsemver.ComponentLibrary, Name: name, Version: mlsemver.SemanticVersion{Branch: "master"}}
}

func TestCommitWorkspaceDatasetOnlyNeedsNoWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := mlstorage.NewMemoryProvider()
	vcs := mlvcs.New(provider, "test")

	ds := datasetKey("ds1")
	_, err := vcs.Put(ctx, ds, []byte("dataset-payload"))
	require.NoError(t, err)

	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	sched := mlscheduler.New(mlscheduler.Config{SlotCount: 1}, cache, &pipeLauncher{listenerCh: make(chan io.ReadWriteCloser, 1)}, nil)

	co := New(Config{WorkspaceRoot: t.TempDir()}, sched, vcs, &chanListener{ch: make(chan io.ReadWriteCloser, 1)}, nil)
	co.Run(ctx)

	ws := &mlmanifest.Workspace{
		Key:      mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws1", Version: mlsemver.SemanticVersion{Branch: "master"}},
		Pipeline: []mlsemver.MetaKey{ds},
	}

	result, err := co.CommitWorkspace(ctx, ws, false)
	require.NoError(t, err)
	assert.Equal(t, mlsemver.SemanticVersion{Branch: "master", API: 0, Inc: 0}, result.Key.Version)
	assert.Contains(t, result.Outputs, ds.VersionedString())
}

func TestCommitWorkspaceLibraryStageDispatchesAndCommits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := mlstorage.NewMemoryProvider()
	vcs := mlvcs.New(provider, "test")

	ds := datasetKey("ds2")
	_, err := vcs.Put(ctx, ds, []byte("dataset-payload"))
	require.NoError(t, err)
	lib := libraryKey("lib2")

	listenerCh := make(chan io.ReadWriteCloser, 1)
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	sched := mlscheduler.New(mlscheduler.Config{SlotCount: 2}, cache, &pipeLauncher{listenerCh: listenerCh}, nil)

	co := New(Config{WorkspaceRoot: t.TempDir()}, sched, vcs, &chanListener{ch: listenerCh}, nil)
	co.Run(ctx)

	ws := &mlmanifest.Workspace{
		Key:      mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws2", Version: mlsemver.SemanticVersion{Branch: "master"}},
		Pipeline: []mlsemver.MetaKey{ds, lib},
	}

	result, err := co.CommitWorkspace(ctx, ws, false)
	require.NoError(t, err)
	assert.Contains(t, result.Outputs, ds.VersionedString())
	assert.Contains(t, result.Outputs, lib.VersionedString())
	assert.Contains(t, result.Params, lib.VersionedString())

	committed, err := vcs.GetSemanticVersion(ctx, result.Key)
	require.NoError(t, err)
	reloaded, err := mlmanifest.ParseMetaFile(committed)
	require.NoError(t, err)
	assert.Equal(t, result.Key.Version, reloaded.Key.Version)
}

func TestCommitWorkspaceSecondSubmissionAdvancesInc(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := mlstorage.NewMemoryProvider()
	vcs := mlvcs.New(provider, "test")
	ds := datasetKey("ds3")
	_, err := vcs.Put(ctx, ds, []byte("payload"))
	require.NoError(t, err)

	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	sched := mlscheduler.New(mlscheduler.Config{SlotCount: 1}, cache, &pipeLauncher{listenerCh: make(chan io.ReadWriteCloser, 1)}, nil)
	co := New(Config{WorkspaceRoot: t.TempDir()}, sched, vcs, &chanListener{ch: make(chan io.ReadWriteCloser, 1)}, nil)
	co.Run(ctx)

	wsKey := mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws3", Version: mlsemver.SemanticVersion{Branch: "master"}}

	first, err := co.CommitWorkspace(ctx, &mlmanifest.Workspace{Key: wsKey, Pipeline: []mlsemver.MetaKey{ds}}, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first.Key.Version.Inc)

	second, err := co.CommitWorkspace(ctx, &mlmanifest.Workspace{Key: wsKey, Pipeline: []mlsemver.MetaKey{ds}}, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.Key.Version.Inc)
}

// TestCommitWorkspaceIdenticalPipelineReusesCachedWorkers commits two
// workspaces with the same [dataset, A, B] pipeline under different names.
// The first submission launches one worker per library stage; the second
// must reuse both warm workers through the compatibility check and launch
// nothing.
func TestCommitWorkspaceIdenticalPipelineReusesCachedWorkers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := mlstorage.NewMemoryProvider()
	vcs := mlvcs.New(provider, "test")
	ds := datasetKey("ds4")
	_, err := vcs.Put(ctx, ds, []byte("payload"))
	require.NoError(t, err)
	libA := libraryKey("A")
	libB := libraryKey("B")

	listenerCh := make(chan io.ReadWriteCloser, 2)
	launcher := &pipeLauncher{listenerCh: listenerCh}
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	sched := mlscheduler.New(mlscheduler.Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)
	co := New(Config{WorkspaceRoot: t.TempDir()}, sched, vcs, &chanListener{ch: listenerCh}, nil)
	co.Run(ctx)

	pipeline := []mlsemver.MetaKey{ds, libA, libB}
	first := &mlmanifest.Workspace{
		Key:      mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws-a", Version: mlsemver.SemanticVersion{Branch: "master"}},
		Pipeline: pipeline,
	}
	_, err = co.CommitWorkspace(ctx, first, false)
	require.NoError(t, err)
	require.Equal(t, 2, launcher.launches)

	active, cached := cache.Len()
	assert.Equal(t, 0, active, "done components must hand their workers back")
	assert.Equal(t, 2, cached)

	second := &mlmanifest.Workspace{
		Key:      mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws-b", Version: mlsemver.SemanticVersion{Branch: "master"}},
		Pipeline: pipeline,
	}
	_, err = co.CommitWorkspace(ctx, second, false)
	require.NoError(t, err)
	assert.Equal(t, 2, launcher.launches, "identical pipeline must reuse both cached workers")
}

// TestCommitWorkspaceResubmissionSkipsTrainedPrefix recommits the same
// workspace key: the trial tree marks the prior run's path trained, so the
// second submission dispatches no execute messages and carries the stored
// artifact hashes over verbatim.
func TestCommitWorkspaceResubmissionSkipsTrainedPrefix(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := mlstorage.NewMemoryProvider()
	vcs := mlvcs.New(provider, "test")
	ds := datasetKey("ds5")
	_, err := vcs.Put(ctx, ds, []byte("payload"))
	require.NoError(t, err)
	lib := libraryKey("lib5")

	listenerCh := make(chan io.ReadWriteCloser, 1)
	launcher := &pipeLauncher{listenerCh: listenerCh}
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	sched := mlscheduler.New(mlscheduler.Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)
	co := New(Config{WorkspaceRoot: t.TempDir()}, sched, vcs, &chanListener{ch: listenerCh}, nil)
	co.Run(ctx)

	wsKey := mlsemver.MetaKey{Type: mlsemver.ComponentWorkspace, Name: "ws5", Version: mlsemver.SemanticVersion{Branch: "master"}}
	first, err := co.CommitWorkspace(ctx, &mlmanifest.Workspace{Key: wsKey, Pipeline: []mlsemver.MetaKey{ds, lib}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, launcher.launches)
	trainedHash := first.Outputs[lib.VersionedString()]
	require.NotEmpty(t, trainedHash)

	second, err := co.CommitWorkspace(ctx, &mlmanifest.Workspace{Key: wsKey, Pipeline: []mlsemver.MetaKey{ds, lib}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.launches, "trained prefix must not dispatch again")
	assert.Equal(t, mlsemver.SemanticVersion{Branch: "master", API: 0, Inc: 1}, second.Key.Version)
	assert.Equal(t, trainedHash, second.Outputs[lib.VersionedString()], "stored artifact hash carries over verbatim")
}
