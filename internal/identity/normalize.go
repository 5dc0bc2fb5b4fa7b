package identity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Top-level fields that vary by environment or by time without carrying a
// meaningful content change.
var volatileWorkflowFields = []string{
	"id",
	"versionId",
	"createdAt",
	"updatedAt",
	"active",
	"tags",
	"shared",
	"sharing",
	"ownedBy",
	"staticData",
	"triggerCount",
	"executionCount",
	"meta",
	"pinData",
}

// Node-level fields that only describe UI layout or runtime bookkeeping.
var volatileNodeFields = []string{
	"position",
	"selected",
	"id",
	"webhookId",
}

// Normalize strips environment-specific and volatile fields from a raw
// workflow definition so that semantically identical workflows hash
// identically regardless of which environment or timestamp produced them.
//
// Credential references inside nodes are reduced to the logical credential
// name: the physical credential identifier differs per environment and must
// not affect identity. Nodes are sorted by name so the hash is independent
// of insertion order.
func Normalize(raw []byte) (map[string]any, error) {
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("normalize: invalid workflow definition: %w", err)
	}

	for _, f := range volatileWorkflowFields {
		delete(def, f)
	}

	nodes, ok := def["nodes"].([]any)
	if !ok {
		return def, nil
	}

	normalized := make([]any, 0, len(nodes))
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			normalized = append(normalized, n)
			continue
		}
		normalized = append(normalized, normalizeNode(node))
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return nodeName(normalized[i]) < nodeName(normalized[j])
	})
	def["nodes"] = normalized

	return def, nil
}

func normalizeNode(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}
	for _, f := range volatileNodeFields {
		delete(out, f)
	}

	creds, ok := out["credentials"].(map[string]any)
	if !ok {
		return out
	}
	reduced := make(map[string]any, len(creds))
	for credType, ref := range creds {
		switch r := ref.(type) {
		case map[string]any:
			// {"id": "...", "name": "..."} -> logical name only
			if name, ok := r["name"].(string); ok {
				reduced[credType] = name
				continue
			}
			reduced[credType] = r
		default:
			reduced[credType] = ref
		}
	}
	out["credentials"] = reduced
	return out
}

func nodeName(v any) string {
	node, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := node["name"].(string)
	return name
}
