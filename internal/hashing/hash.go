package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

func HashWorkload(w *domain.Workload) (string, error) {
	data, err := json.Marshal(canonicalizeWorkload(w))
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func canonicalizeWorkload(w *domain.Workload) map[string]any {
	relations := make([]map[string]any, len(w.Relations))
	for i, rel := range w.Relations {
		m := map[string]any{
			"name": rel.Name,
			"kind": rel.Kind,
			"len":  rel.Len,
		}
		if rel.MaxID != 0 {
			m["max_id"] = rel.MaxID
		}
		if rel.Skew != 0 {
			m["skew"] = rel.Skew
		}
		if rel.References != "" {
			m["references"] = rel.References
		}
		if rel.Workers != 0 {
			m["workers"] = rel.Workers
		}
		if rel.Remainder != "" {
			m["remainder"] = rel.Remainder
		}
		if rel.Payload != "" {
			m["payload"] = rel.Payload
		}
		relations[i] = m
	}

	result := map[string]any{
		"name":      w.Name,
		"relations": relations,
	}
	if w.ID != "" {
		result["id"] = w.ID
	}
	if w.Version != "" {
		result["version"] = w.Version
	}
	if w.Description != "" {
		result["description"] = w.Description
	}
	return result
}

type runConfigHashPayload struct {
	WorkloadHash string         `json:"workload_hash"`
	ResolvedLens map[string]int `json:"resolved_lens"`
	Seed         int64          `json:"seed"`
	Verify       bool           `json:"verify"`
	WideTuples   bool           `json:"wide_tuples"`
}

// HashRunConfig identifies everything that determines the generated tuples
// of a run, plus whether it was verified.
func HashRunConfig(w *domain.Workload, resolvedLens map[string]int, seed int64, verify bool) (string, error) {
	wh, err := HashWorkload(w)
	if err != nil {
		return "", err
	}

	canon := make(map[string]int, len(resolvedLens))
	keys := make([]string, 0, len(resolvedLens))
	for k := range resolvedLens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		canon[k] = resolvedLens[k]
	}

	p := runConfigHashPayload{
		WorkloadHash: wh,
		ResolvedLens: canon,
		Seed:         seed,
		Verify:       verify,
		WideTuples:   tuple.Wide,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Checksum hashes the tuples in order as little-endian 64-bit key/payload
// pairs, so narrow and wide builds agree on equal content.
func Checksum(ts []tuple.Tuple) string {
	h := sha256.New()
	var chunk [4096]byte
	buf := chunk[:0]
	for _, t := range ts {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(t.Key)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(t.Payload)))
		if len(buf) == len(chunk) {
			h.Write(buf)
			buf = chunk[:0]
		}
	}
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}
