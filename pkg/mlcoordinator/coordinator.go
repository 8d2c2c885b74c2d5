package mlcoordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlscheduler"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
	"github.com/virtengine/mlpipe/pkg/mltrialtree"
	"github.com/virtengine/mlpipe/pkg/mlvcs"
	"github.com/virtengine/mlpipe/pkg/mlwire"
)

// Config holds the coordinator's own knobs (spec.md §6's coordinator.*
// surface); scheduler and cache knobs live in their own Config types.
type Config struct {
	Host             string
	WorkerManagerPort int
	// WorkspaceRoot is the local filesystem root under which per-pipeline
	// base/venv/temp/output directories are prepared.
	WorkspaceRoot string
	// TrainScript is the script name fabricated into the execute command
	// for library stages (spec.md §4.H step 5).
	TrainScript string
	// ComponentDoneTimeout bounds how long the coordinator waits for a
	// dispatched component's "done" message. Zero disables the bound. On
	// expiry the worker is poisoned (evicted, never reused) and the
	// pipeline submission is aborted (spec.md §9, §8 failure table).
	ComponentDoneTimeout time.Duration
}

// Coordinator drives pipeline submissions end to end: trial-tree pruning,
// scheduler-mediated worker dispatch over the framed channel, and commit of
// results into the semantic VCS. It takes no lock and is not safe for
// concurrent use: callers submit one pipeline at a time (CommitWorkspace,
// MergeBranches), and the calling goroutine is the only one that mutates
// the scheduler/cache.
type Coordinator struct {
	cfg       Config
	scheduler *mlscheduler.Scheduler
	vcs       *mlvcs.VCS
	listener  Listener
	sink      EventSink

	conns   map[string]*workerConn
	readyCh chan readyWorker
}

// New builds a Coordinator. sink may be nil, defaulting to LogEventSink.
func New(cfg Config, scheduler *mlscheduler.Scheduler, vcs *mlvcs.VCS, listener Listener, sink EventSink) *Coordinator {
	if sink == nil {
		sink = LogEventSink{}
	}
	return &Coordinator{
		cfg:       cfg,
		scheduler: scheduler,
		vcs:       vcs,
		listener:  listener,
		sink:      sink,
		conns:     make(map[string]*workerConn),
		readyCh:   make(chan readyWorker, 8),
	}
}

// Run starts the background accept loop. It returns immediately; cancel ctx
// to stop accepting new worker connections.
func (co *Coordinator) Run(ctx context.Context) {
	safeGo("mlcoordinator:accept", func() {
		co.acceptLoop(ctx)
	})
}

// Shutdown sends exit to every known worker connection (spec.md §5's
// cancellation model) and closes their transports.
func (co *Coordinator) Shutdown() {
	for id, wc := range co.conns {
		exitMsg, err := mlwire.New("coordinator", mlwire.CmdExit)
		if err == nil {
			_ = wc.conn.WriteMessage(exitMsg)
		}
		wc.closer.Close()
		delete(co.conns, id)
	}
}

// CommitWorkspace implements spec.md §4.H's commit_workspace: it derives
// the next semantic version for ws, builds a trial tree against the prior
// head (if any), dispatches every un-trained node in pipeline order, and
// commits the result into VCS. apiVersionUpdated is the verbatim
// "api-version-updated" attribute the caller read off the terminal
// library's captured manifest (see DESIGN.md); it selects whether the
// version bump advances api or inc.
func (co *Coordinator) CommitWorkspace(ctx context.Context, ws *mlmanifest.Workspace, apiVersionUpdated bool) (*mlmanifest.Workspace, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}

	branch := ws.Key.Version.Branch
	if branch == "" {
		branch = "master"
	}

	current, prior, err := co.latestVersion(ctx, ws.Key, branch)
	if err != nil {
		return nil, err
	}
	ws.Key.Version = mlmanifest.NextVersion(branch, current, apiVersionUpdated)

	candidates := []*mlmanifest.Workspace{ws}
	if prior != nil {
		candidates = []*mlmanifest.Workspace{prior, ws}
	}
	tree, err := mltrialtree.Build(candidates)
	if err != nil {
		return nil, err
	}

	if err := co.prepareDirs(ws); err != nil {
		return nil, err
	}

	path, err := tree.FindPath(ws.Pipeline)
	if err != nil {
		return nil, err
	}

	shape := PipelineShape{WorkspaceKey: ws.Key}
	ids := make([]string, len(path))
	for i, node := range path {
		ids[i] = uuid.NewString()
		shape.Components = append(shape.Components, ComponentShape{
			Position:    i,
			Key:         node.Key,
			ComponentID: ids[i],
			Skipped:     node.Trained,
		})
	}
	co.sink.PipelineStarted(shape)

	if ws.Outputs == nil {
		ws.Outputs = make(map[string]string)
	}
	if ws.Params == nil {
		ws.Params = make(map[string]string)
	}

	if err := co.runPath(ctx, ws, path, ids); err != nil {
		return nil, err
	}

	for _, node := range path {
		stringKey := node.Key.VersionedString()
		if node.OutputHash != "" {
			ws.Outputs[stringKey] = node.OutputHash
		}
		if node.ParamsHash != "" {
			ws.Params[stringKey] = node.ParamsHash
		}
	}

	meta, err := ws.WriteMetaFile()
	if err != nil {
		return nil, err
	}
	if _, err := co.vcs.Put(ctx, ws.Key, meta); err != nil {
		return nil, err
	}

	co.sink.PipelineCommitted(ws.Key, ws.Key.Version)
	return ws, nil
}

// MergeBranches implements spec.md §4.H's merge_branches: loads both
// branch heads, zeroes outputs/params to force a retrain of every matching
// prefix (the design's documented "not modelled" simplification), and
// trains the union trial tree.
func (co *Coordinator) MergeBranches(ctx context.Context, mergeKey, baseKey mlsemver.MetaKey, depth int) (*mlmanifest.Workspace, error) {
	mergeHead, err := co.vcs.GetBranchHead(ctx, mergeKey)
	if err != nil {
		return nil, err
	}
	baseHead, err := co.vcs.GetBranchHead(ctx, baseKey)
	if err != nil {
		return nil, err
	}
	mergeWS, err := mlmanifest.ParseMetaFile(mergeHead)
	if err != nil {
		return nil, err
	}
	baseWS, err := mlmanifest.ParseMetaFile(baseHead)
	if err != nil {
		return nil, err
	}
	mergeWS.Outputs = make(map[string]string)
	mergeWS.Params = make(map[string]string)
	baseWS.Outputs = make(map[string]string)
	baseWS.Params = make(map[string]string)

	tree, err := mltrialtree.Build([]*mlmanifest.Workspace{baseWS, mergeWS})
	if err != nil {
		return nil, err
	}

	if err := co.prepareDirs(mergeWS); err != nil {
		return nil, err
	}

	for _, path := range tree.Paths() {
		ids := make([]string, len(path))
		for i := range path {
			ids[i] = uuid.NewString()
		}
		if err := co.runPath(ctx, mergeWS, path, ids); err != nil {
			return nil, err
		}
	}

	newKey := mlsemver.MetaKey{Type: mergeKey.Type, Name: mergeKey.Name, Version: mlsemver.SemanticVersion{
		Branch: mergeKey.Version.Branch, API: mergeKey.Version.API, Inc: mergeKey.Version.Inc + 1,
	}}
	resolved, err := mergeWS.WriteMetaFile()
	if err != nil {
		return nil, err
	}
	if _, err := co.vcs.Merge(ctx, mergeKey, baseKey, newKey, resolved); err != nil {
		return nil, err
	}
	_ = depth // depth bounds the lineage walk a caller may perform beforehand; the merge itself is depth-independent.
	return mergeWS, nil
}

func indexOfNode(path []*mltrialtree.Node, node *mltrialtree.Node) int {
	for i, n := range path {
		if n == node {
			return i
		}
	}
	return -1
}

func (co *Coordinator) latestVersion(ctx context.Context, key mlsemver.MetaKey, branch string) (current *mlsemver.SemanticVersion, prior *mlmanifest.Workspace, err error) {
	versions, err := co.vcs.ListVersions(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	for i := range versions {
		v := versions[i]
		if v.Branch != branch {
			continue
		}
		if current == nil || current.Less(v) {
			cp := v
			current = &cp
		}
	}
	if current == nil {
		return nil, nil, nil
	}
	headKey := mlsemver.MetaKey{Type: key.Type, Name: key.Name, Version: *current}
	payload, err := co.vcs.GetSemanticVersion(ctx, headKey)
	if err != nil {
		return current, nil, err
	}
	prior, err = mlmanifest.ParseMetaFile(payload)
	if err != nil {
		return current, nil, err
	}
	return current, prior, nil
}

func (co *Coordinator) prepareDirs(ws *mlmanifest.Workspace) error {
	root := co.cfg.WorkspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	base := filepath.Join(root, ws.Key.Name, ws.Key.Version.String(), uuid.NewString())
	ws.Paths = mlmanifest.WorkspacePaths{
		Base:   base,
		Venv:   filepath.Join(base, "venv"),
		Temp:   filepath.Join(base, "tmp"),
		Output: filepath.Join(base, "output"),
	}
	for _, dir := range []string{ws.Paths.Base, ws.Paths.Venv, ws.Paths.Temp, ws.Paths.Output} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("prepare workspace directory %q: %w", dir, err)
		}
	}
	return nil
}

// runPath executes every node along path in order (spec.md §4.H step 5).
// Dataset nodes are always fetched from VCS — "loading a dataset requires
// no training" (mltrialtree.Build's own framing) means they are never
// gated by the trained-skip rule. Library nodes are gated by it: Train
// skips any node already marked trained, which is how repeated pipeline
// prefixes avoid re-dispatching execute messages.
func (co *Coordinator) runPath(ctx context.Context, ws *mlmanifest.Workspace, path []*mltrialtree.Node, ids []string) error {
	libraryPath := make([]*mltrialtree.Node, 0, len(path))
	for _, node := range path {
		if node.Key.Type != mlsemver.ComponentDataset {
			libraryPath = append(libraryPath, node)
			continue
		}
		result, err := co.runDataset(ctx, node)
		if err != nil {
			return ErrAborted.Wrapf("dataset %s: %v", node.Key.VersionedString(), err)
		}
		node.OutputHash = result.OutputHash
	}

	return mltrialtree.Train(libraryPath, func(node *mltrialtree.Node) (mltrialtree.TrainResult, error) {
		idx := indexOfNode(path, node)
		result, err := co.runLibrary(ctx, ws, node, idx, ids[idx])
		if err != nil {
			return mltrialtree.TrainResult{}, ErrAborted.Wrapf("component %s: %v", node.Key.VersionedString(), err)
		}
		return result, nil
	})
}

func (co *Coordinator) runDataset(ctx context.Context, node *mltrialtree.Node) (mltrialtree.TrainResult, error) {
	payload, err := co.vcs.GetBranchHead(ctx, node.Key)
	if err != nil {
		return mltrialtree.TrainResult{}, err
	}
	return mltrialtree.TrainResult{OutputHash: hashPayload(payload)}, nil
}

func (co *Coordinator) runLibrary(ctx context.Context, ws *mlmanifest.Workspace, node *mltrialtree.Node, position int, componentID string) (mltrialtree.TrainResult, error) {
	outputDir := filepath.Join(ws.Paths.Output, node.Key.Name)
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return mltrialtree.TrainResult{}, err
	}

	comp := mlscheduler.Component{
		ID:          componentID,
		Position:    position,
		Key:         node.Key,
		WorkingDir:  ws.Paths.Venv,
		KeyForEncFS: "NULL",
		Command:     []string{"python", co.trainScript(), "--input", ws.Paths.Venv, "--output", outputDir},
	}

	var workerID string
	hit := false
	if err := co.scheduler.GetWorker(ctx, comp, func(id string) { workerID = id; hit = true }); err != nil {
		return mltrialtree.TrainResult{}, err
	}
	if !hit {
		id, err := co.awaitAssignment(ctx, componentID)
		if err != nil {
			return mltrialtree.TrainResult{}, err
		}
		workerID = id
	}

	wc, ok := co.conns[workerID]
	if !ok {
		return mltrialtree.TrainResult{}, ErrUnexpectedMessage.Wrapf("no live connection for worker %q", workerID)
	}

	execMsg, err := mlwire.New("coordinator", mlwire.CmdExecute, append([]string{componentID, ws.Paths.Venv, comp.KeyForEncFS}, comp.Command...)...)
	if err != nil {
		return mltrialtree.TrainResult{}, err
	}
	if err := wc.conn.WriteMessage(execMsg); err != nil {
		return mltrialtree.TrainResult{}, err
	}
	co.sink.ComponentDispatched(componentID, node.Key)

	if err := co.awaitDone(ctx, wc, componentID); err != nil {
		co.poison(wc)
		return mltrialtree.TrainResult{}, err
	}
	co.sink.ComponentDone(componentID)

	if err := co.scheduler.Release(workerID); err != nil {
		return mltrialtree.TrainResult{}, err
	}

	return mltrialtree.TrainResult{
		OutputHash: hashPayload([]byte(outputDir)),
		ParamsHash: hashPayload([]byte(componentID)),
	}, nil
}

func (co *Coordinator) trainScript() string {
	if co.cfg.TrainScript == "" {
		return "train.py"
	}
	return co.cfg.TrainScript
}

// awaitAssignment blocks until a newly launched worker announces itself and
// the scheduler matches it to componentID. Only the main-loop goroutine
// (the caller of CommitWorkspace) reads readyCh, so scheduler/cache
// mutation stays single-threaded.
func (co *Coordinator) awaitAssignment(ctx context.Context, componentID string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case rw := <-co.readyCh:
			manifest, err := parseManifestMessage(rw.manifest)
			if err != nil {
				rw.wc.closer.Close()
				continue
			}
			handle := newWorkerHandle(rw.wc.id, manifest)
			co.conns[rw.wc.id] = rw.wc

			var matched mlscheduler.Component
			gotMatch := false
			if err := co.scheduler.OnWorkerReady(ctx, handle, func(c mlscheduler.Component) { matched = c; gotMatch = true }); err != nil {
				continue
			}
			if gotMatch && matched.ID == componentID {
				return rw.wc.id, nil
			}
		}
	}
}

// awaitDone blocks until wc reports done for componentID, or errors. If
// cfg.ComponentDoneTimeout is set, exceeding it aborts with
// ErrComponentTimeout (spec.md §9: no per-component timeout exists in the
// source; this is the design's resolution).
func (co *Coordinator) awaitDone(ctx context.Context, wc *workerConn, componentID string) error {
	if co.cfg.ComponentDoneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.cfg.ComponentDoneTimeout)
		defer cancel()
	}
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrComponentTimeout.Wrapf("worker %s: component %s", wc.id, componentID)
			}
			return ctx.Err()
		case err := <-wc.errs:
			return ErrUnexpectedMessage.Wrapf("worker %s channel error: %v", wc.id, err)
		case msg, ok := <-wc.msgs:
			if !ok {
				return ErrUnexpectedMessage.Wrapf("worker %s channel closed before done", wc.id)
			}
			if msg.Cmd != mlwire.CmdDone {
				continue
			}
			if len(msg.Args) == 0 || msg.Args[0] != componentID {
				continue
			}
			return nil
		}
	}
}

// poison evicts wc from the scheduler's cache and tears down its
// connection: a worker that timed out or errored mid-component cannot be
// trusted for future reuse (spec.md §8 failure table: "Mark worker
// poisoned; remove from pool").
func (co *Coordinator) poison(wc *workerConn) {
	co.scheduler.Poison(wc.id)
	delete(co.conns, wc.id)
	wc.closer.Close()
}
