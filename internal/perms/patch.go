package perms

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// NoPosition is the effective index of an actor holding no position.
const NoPosition = math.MaxInt32

// CheckPatchChanges fails unless the actor holds every permission that differs
// between before and after. The error names each offending permission.
func CheckPatchChanges(actorPerms, before, after []string) error {
	var missing []string
	for _, changed := range SymmetricDifference(before, after) {
		p := Parse(changed)
		p.Negated = false
		if !HasPerm(actorPerms, p.String()) {
			missing = append(missing, changed)
			continue
		}
		if p.Wildcard() && negatesWithin(actorPerms, p.Namespace) {
			missing = append(missing, changed)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingPermissions(missing)
	}
	return nil
}

// SymmetricDifference returns the sorted permissions present in exactly one of a and b.
func SymmetricDifference(a, b []string) []string {
	inA := toSet(a)
	inB := toSet(b)
	var out []string
	for p := range inA {
		if _, ok := inB[p]; !ok {
			out = append(out, p)
		}
	}
	for p := range inB {
		if _, ok := inA[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// LowestIndex returns the most senior index among indexes, or NoPosition.
func LowestIndex(indexes []int) int {
	lowest := NoPosition
	for _, idx := range indexes {
		if idx < lowest {
			lowest = idx
		}
	}
	return lowest
}

// CheckHierarchy fails when target is as senior as or senior to the actor.
func CheckHierarchy(actorLowest, targetIndex int, what string) error {
	if targetIndex > actorLowest {
		return nil
	}
	return apperrors.NewForbidden(fmt.Sprintf(
		"you cannot modify %s with index %d: your most senior position has index %d",
		what, targetIndex, actorLowest,
	))
}

func negatesWithin(set []string, namespace string) bool {
	for _, raw := range set {
		p := Parse(raw)
		if p.Negated && (namespace == "global" || p.Namespace == namespace) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = Normalize(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
