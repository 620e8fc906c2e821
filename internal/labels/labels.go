// Package labels derives integer class ids from free-text label
// strings under one of three policies. Labels a policy does not cover
// map to the sentinel class -1; the rows themselves are kept.
package labels

import (
	"sort"
	"strings"
)

// Sentinel is the class id for labels the active policy does not map.
const Sentinel = -1

// Policy is the closed set of labeling policies.
type Policy int

const (
	// Generic separates benign sources from malicious ones
	// (malware/misp/phishing feeds) using the full feature set.
	Generic Policy = iota
	// Binary separates benign domains from DGA-generated ones on
	// lexical features only.
	Binary
	// Multiclass assigns DGA family ids from an external family
	// table, on lexical features only.
	Multiclass
)

// ParsePolicy maps the CLI flag to a policy. Anything other than the
// two named modes selects the generic policy.
func ParsePolicy(mode string) Policy {
	switch mode {
	case "binary":
		return Binary
	case "multiclass":
		return Multiclass
	}
	return Generic
}

func (p Policy) String() string {
	switch p {
	case Binary:
		return "binary"
	case Multiclass:
		return "multiclass"
	}
	return "generic"
}

// LexicalOnly reports whether the policy restricts the feature set to
// lexical columns.
func (p Policy) LexicalOnly() bool { return p == Binary || p == Multiclass }

// Normalize keeps the first two colon-delimited segments of a label
// ("family:source:extra" -> "family:source").
func Normalize(label string) string {
	parts := strings.SplitN(label, ":", 3)
	if len(parts) < 2 {
		return label
	}
	return parts[0] + ":" + parts[1]
}

// BuildClassMap derives the class map for the distinct labels present.
// families is consulted only under the multiclass policy. Labels the
// policy does not cover get no entry.
func BuildClassMap(observed []string, policy Policy, families FamilyTable) map[string]int {
	distinct := make(map[string]bool)
	var uniq []string
	for _, l := range observed {
		if !distinct[l] {
			distinct[l] = true
			uniq = append(uniq, l)
		}
	}
	sort.Strings(uniq)

	out := make(map[string]int)
	for _, l := range uniq {
		switch policy {
		case Binary:
			if strings.HasPrefix(l, "benign") {
				out[l] = 0
			} else if strings.HasPrefix(l, "dga") {
				out[l] = 1
			}
		case Multiclass:
			if id, ok := families[Normalize(l)]; ok {
				out[l] = id
			}
		default:
			switch {
			case strings.HasPrefix(l, "benign"):
				out[l] = 0
			case strings.HasPrefix(l, "malware"),
				strings.HasPrefix(l, "misp"),
				strings.HasPrefix(l, "phishing"):
				out[l] = 1
			}
		}
	}
	return out
}

// Encode converts raw labels to class ids using the map, assigning
// the sentinel to anything unmapped. The second return lists the
// distinct unmapped labels for warning logs.
func Encode(observed []string, classMap map[string]int) ([]int, []string) {
	out := make([]int, len(observed))
	seen := make(map[string]bool)
	var unmapped []string
	for i, l := range observed {
		id, ok := classMap[l]
		if !ok {
			out[i] = Sentinel
			if !seen[l] {
				seen[l] = true
				unmapped = append(unmapped, l)
			}
			continue
		}
		out[i] = id
	}
	sort.Strings(unmapped)
	return out, unmapped
}

// Counts tallies rows per raw label, for the multiclass diagnostics.
func Counts(observed []string) map[string]int {
	out := make(map[string]int)
	for _, l := range observed {
		out[l]++
	}
	return out
}
