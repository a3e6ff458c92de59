package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"browser-observer/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type canonicalState struct {
	URL        string   `json:"url"`
	Identities []string `json:"identities"`
	HasModal   bool     `json:"has_modal"`
	HasToast   bool     `json:"has_toast"`
}

// Compute hashes url, the sorted node identities and the modal/toast flags.
// Node order and geometry never affect the result.
func Compute(url string, nodes []entity.RoleNode, hasModal, hasToast bool) entity.StateSignature {
	if len(nodes) > entity.MaxRoleNodes {
		nodes = nodes[:entity.MaxRoleNodes]
	}
	ids := make([]string, 0, len(nodes))
	structure := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.StateKey())
		structure = append(structure, n.StructuralKey())
	}
	sort.Strings(ids)
	sort.Strings(structure)

	payload, err := json.Marshal(canonicalState{
		URL:        url,
		Identities: ids,
		HasModal:   hasModal,
		HasToast:   hasToast,
	})
	if err != nil {
		// strings and bools always marshal
		panic(err)
	}
	sum := sha256.Sum256(payload)

	return entity.StateSignature{
		Hash:       hex.EncodeToString(sum[:]),
		URL:        url,
		Identities: ids,
		Structure:  structure,
		HasModal:   hasModal,
		HasToast:   hasToast,
	}
}

// Similarity is 1 for equal hashes and 0 across URLs. Otherwise it is the
// Jaccard index of the role+name structure, halved when a node kept its
// place but changed value or flags, and halved again when modal or toast
// flags differ. A typed field therefore never counts as a near-duplicate,
// however large the page.
func Similarity(a, b entity.StateSignature) float64 {
	if a.Hash != "" && a.Hash == b.Hash {
		return 1.0
	}
	if a.URL != b.URL {
		return 0
	}

	inter, union := overlap(a.Structure, b.Structure)
	sim := ratio(inter, union)
	if StateChanged(a, b) {
		sim *= 0.5
	}
	if a.HasModal != b.HasModal || a.HasToast != b.HasToast {
		sim *= 0.5
	}
	return sim
}

// StateChanged reports whether some node present in both signatures differs
// only in value or flags. Every structural change moves one role+name key and
// one state key, so state keys that moved beyond that count are in-place edits.
func StateChanged(a, b entity.StateSignature) bool {
	sInter, sUnion := overlap(a.Identities, b.Identities)
	kInter, kUnion := overlap(a.Structure, b.Structure)
	return sUnion-sInter > kUnion-kInter
}

func ratio(inter, union int) float64 {
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

// overlap returns intersection and union sizes of a and b as sets.
func overlap(a, b []string) (int, int) {
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	inter := 0
	seen := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			inter++
		}
	}
	return inter, len(set) + len(seen) - inter
}
