// Package mltrialtree implements the prefix-sharing trial tree: a DAG over
// candidate pipelines pruned by per-position API-version compatibility,
// with "trained" marking sourced from workspace lineage.
package mltrialtree

import (
	"time"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// Node is one stage of a candidate pipeline. Each parent holds its own
// child nodes, so a key at a given position appears once per distinct
// prefix; the tree is rooted at a synthetic node.
type Node struct {
	Key      mlsemver.MetaKey
	Trained  bool
	Children map[string]*Node

	OutputHash    string
	ParamsHash    string
	ExecutionTime time.Duration
	IOTime        time.Duration
	StorageTime   time.Duration
	Perf          float64
}

func newNode(key mlsemver.MetaKey, trained bool) *Node {
	return &Node{Key: key, Trained: trained, Children: make(map[string]*Node)}
}

// Tree is a prefix-sharing trial tree over a fixed pipeline length.
type Tree struct {
	root   *Node
	length int
}

type pairKey struct {
	left  string
	right string
}

// Build constructs a Tree over the candidate workspaces. All workspaces
// must share the same pipeline length; otherwise Build rejects with
// ErrPipelineLengthMismatch.
func Build(workspaces []*mlmanifest.Workspace) (*Tree, error) {
	if len(workspaces) == 0 {
		return &Tree{root: newNode(mlsemver.MetaKey{}, true), length: 0}, nil
	}

	length := len(workspaces[0].Pipeline)
	for _, ws := range workspaces {
		if len(ws.Pipeline) != length {
			return nil, ErrPipelineLengthMismatch.Wrapf("workspace %q has pipeline length %d, want %d", ws.Key.Name, len(ws.Pipeline), length)
		}
	}

	compat := buildCompatibilitySet(workspaces, length)

	root := newNode(mlsemver.MetaKey{}, true)
	tree := &Tree{root: root, length: length}

	// Stage 0: every distinct dataset key across workspaces is a child of
	// root, unconditionally (root has no compatibility constraint) and
	// flagged trained by default (loading a dataset requires no training).
	stage0 := uniqueStageKeys(workspaces, 0)
	for _, k := range stage0 {
		root.Children[k.VersionedString()] = newNode(k, true)
	}

	// Stages 1..L-1: attach children only where the parent-child pair is
	// in the compatibility set for that boundary.
	for i := 0; i < length-1; i++ {
		stageNext := uniqueStageKeys(workspaces, i+1)
		var parents []*Node
		collectNodesAtDepth(root, i, &parents)
		for _, parent := range parents {
			for _, childKey := range stageNext {
				pk := pairKey{left: parent.Key.VersionedString(), right: childKey.VersionedString()}
				if !compat[i][pk] {
					continue
				}
				if _, exists := parent.Children[childKey.VersionedString()]; !exists {
					parent.Children[childKey.VersionedString()] = newNode(childKey, false)
				}
			}
		}
	}

	tree.markTrained(workspaces)
	return tree, nil
}

func uniqueStageKeys(workspaces []*mlmanifest.Workspace, position int) []mlsemver.MetaKey {
	seen := make(map[string]bool)
	var out []mlsemver.MetaKey
	for _, ws := range workspaces {
		if position >= len(ws.Pipeline) {
			continue
		}
		k := ws.Pipeline[position]
		s := k.VersionedString()
		if !seen[s] {
			seen[s] = true
			out = append(out, k)
		}
	}
	return out
}

// buildCompatibilitySet groups workspaces by the API version of
// pipeline[i], and within each group takes the cartesian product of
// pipeline[i] and pipeline[i+1] keys as compatible pairs.
func buildCompatibilitySet(workspaces []*mlmanifest.Workspace, length int) []map[pairKey]bool {
	compat := make([]map[pairKey]bool, length)
	for i := 0; i < length-1; i++ {
		compat[i] = make(map[pairKey]bool)

		groups := make(map[uint32][]*mlmanifest.Workspace)
		for _, ws := range workspaces {
			api := ws.Pipeline[i].Version.API
			groups[api] = append(groups[api], ws)
		}

		for _, group := range groups {
			leftKeys := uniqueStageKeys(group, i)
			rightKeys := uniqueStageKeys(group, i+1)
			for _, l := range leftKeys {
				for _, r := range rightKeys {
					compat[i][pairKey{left: l.VersionedString(), right: r.VersionedString()}] = true
				}
			}
		}
	}
	return compat
}

// collectNodesAtDepth appends every node reachable at exactly depth steps
// from root (depth 0 = root's direct children).
func collectNodesAtDepth(root *Node, depth int, out *[]*Node) {
	frontier := []*Node{root}
	for d := 0; d <= depth; d++ {
		var next []*Node
		for _, n := range frontier {
			for _, c := range n.Children {
				next = append(next, c)
			}
		}
		frontier = next
	}
	*out = append(*out, frontier...)
}

// markTrained walks each workspace with a non-empty outputs map along its
// exact pipeline path, marking matched nodes trained and recording their
// stored artifact/params hash.
func (t *Tree) markTrained(workspaces []*mlmanifest.Workspace) {
	for _, ws := range workspaces {
		if !ws.IsTrained() {
			continue
		}
		node := t.root
		for _, key := range ws.Pipeline {
			child, ok := node.Children[key.VersionedString()]
			if !ok {
				break
			}
			node = child
			stringKey := key.VersionedString()
			if out, ok := ws.Outputs[stringKey]; ok {
				node.Trained = true
				node.OutputHash = out
			}
			if p, ok := ws.Params[stringKey]; ok {
				node.ParamsHash = p
			}
		}
	}
}

// Paths enumerates every un-pruned root-to-leaf path, excluding the
// synthetic root node itself.
func (t *Tree) Paths() [][]*Node {
	var out [][]*Node
	var walk func(node *Node, prefix []*Node)
	walk = func(node *Node, prefix []*Node) {
		if len(node.Children) == 0 {
			if len(prefix) > 0 {
				out = append(out, append([]*Node(nil), prefix...))
			}
			return
		}
		for _, child := range node.Children {
			walk(child, append(prefix, child))
		}
	}
	walk(t.root, nil)
	return out
}

// FindPath locates the single un-pruned path matching pipeline exactly.
func (t *Tree) FindPath(pipeline []mlsemver.MetaKey) ([]*Node, error) {
	node := t.root
	path := make([]*Node, 0, len(pipeline))
	for _, key := range pipeline {
		child, ok := node.Children[key.VersionedString()]
		if !ok {
			return nil, ErrPathNotFound.Wrapf("no compatible path through %q", key.VersionedString())
		}
		path = append(path, child)
		node = child
	}
	return path, nil
}

// TrainResult is what a training callback reports for one executed node.
type TrainResult struct {
	OutputHash    string
	ParamsHash    string
	ExecutionTime time.Duration
	IOTime        time.Duration
	StorageTime   time.Duration
	Perf          float64
}

// TrainCallback executes one pipeline node and reports its result.
type TrainCallback func(node *Node) (TrainResult, error)

// Train walks path in order, invoking callback for every node that is not
// already marked trained, and records the callback's result on the node.
// Already-trained nodes are skipped, which is how repeated pipelines avoid
// re-dispatching execute messages for prefixes already materialized.
func Train(path []*Node, callback TrainCallback) error {
	for _, node := range path {
		if node.Trained {
			continue
		}
		result, err := callback(node)
		if err != nil {
			return err
		}
		node.Trained = true
		node.OutputHash = result.OutputHash
		node.ParamsHash = result.ParamsHash
		node.ExecutionTime = result.ExecutionTime
		node.IOTime = result.IOTime
		node.StorageTime = result.StorageTime
		node.Perf = result.Perf
	}
	return nil
}
