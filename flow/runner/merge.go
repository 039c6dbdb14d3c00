// Package runner drives workflow execution: a per-producer production
// loop, a single-pass API runner, and the shared traversal that handles
// conditional routing, fork-join merges, sentinel broadcast, and loop
// sub-DAG iteration.
package runner

import (
	"sort"

	"github.com/lyzr/flowengine/flow/payload"
)

// MergeBranchOutputs joins parallel branch outputs into one payload. The
// merged data contains every key from the pre-fork payload plus every
// key from each branch's terminal output. Collisions resolve
// deterministically: the first branch keeps the base key, later branches
// get base_2, base_3, ... in branch iteration order. Id and metadata are
// inherited from the pre-fork payload.
//
// With zero branches the merge is the pre-fork payload itself.
func MergeBranchOutputs(prefork *payload.NodeOutput, branches []*payload.NodeOutput) *payload.NodeOutput {
	merged := prefork.Clone()

	for _, branch := range branches {
		if branch == nil {
			continue
		}
		for _, key := range sortedNewKeys(prefork.Data, branch.Data) {
			merged.SetData(key, branch.Data[key])
		}
	}
	return merged
}

// sortedNewKeys returns branch keys absent from the pre-fork payload, in
// a stable order so the merge is deterministic for a given branch order
func sortedNewKeys(prefork, branch map[string]any) []string {
	keys := make([]string, 0, len(branch))
	for k := range branch {
		if _, existed := prefork[k]; existed {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
