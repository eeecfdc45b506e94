// Package perms resolves staff permission strings.
//
// A permission is "namespace.perm". "namespace.*" grants every permission in
// the namespace and "global.*" (or the bare "*") grants everything. A leading
// "~" negates. Resolution is a pure fold over positions, overrides and active
// disciplinaries.
package perms

import (
	"sort"
	"strings"
	"time"
)

const (
	Negator        = "~"
	GlobalWildcard = "global.*"
	bareWildcard   = "*"
)

// Permission is a parsed permission string.
type Permission struct {
	Namespace string
	Perm      string
	Negated   bool
}

// Parse splits a permission string. A string without a dot is treated as a
// whole namespace wildcard.
func Parse(raw string) Permission {
	raw = Normalize(raw)
	p := Permission{}
	if strings.HasPrefix(raw, Negator) {
		p.Negated = true
		raw = raw[len(Negator):]
	}
	ns, perm, ok := strings.Cut(raw, ".")
	if !ok {
		perm = "*"
	}
	p.Namespace = ns
	p.Perm = perm
	return p
}

func (p Permission) String() string {
	s := p.Namespace + "." + p.Perm
	if p.Negated {
		return Negator + s
	}
	return s
}

// Wildcard reports whether p covers a whole namespace.
func (p Permission) Wildcard() bool {
	return p.Perm == "*"
}

// Normalize trims whitespace and rewrites the bare wildcard.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	switch raw {
	case bareWildcard:
		return GlobalWildcard
	case Negator + bareWildcard:
		return Negator + GlobalWildcard
	}
	return raw
}

// PositionPerms is the permission-bearing view of a held position.
type PositionPerms struct {
	ID    string
	Index int
	Perms []string
}

// Disciplinary is the permission-bearing view of an active disciplinary.
type Disciplinary struct {
	ID         string
	CreatedAt  time.Time
	Additory   bool
	PermLimits []string
}

// Input gathers everything that contributes to a resolved permission set.
type Input struct {
	Positions      []PositionPerms
	Overrides      []string
	Disciplinaries []Disciplinary
}

// Resolve folds positions, then overrides, then active disciplinaries into a
// flat permission set.
//
// Positions apply from the highest index to the lowest so senior positions
// apply last and win. Disciplinaries fold in created_at order; a non-additory
// one discards everything accumulated before it.
func Resolve(in Input) []string {
	positions := append([]PositionPerms(nil), in.Positions...)
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].Index != positions[j].Index {
			return positions[i].Index > positions[j].Index
		}
		return positions[i].ID < positions[j].ID
	})

	set := newFoldSet()
	for _, pos := range positions {
		set.applyAll(pos.Perms)
	}
	set.applyAll(in.Overrides)

	discs := append([]Disciplinary(nil), in.Disciplinaries...)
	sort.SliceStable(discs, func(i, j int) bool {
		if !discs[i].CreatedAt.Equal(discs[j].CreatedAt) {
			return discs[i].CreatedAt.Before(discs[j].CreatedAt)
		}
		return discs[i].ID < discs[j].ID
	})
	for _, d := range discs {
		if !d.Additory {
			set = newFoldSet()
		}
		set.applyAll(d.PermLimits)
	}
	return set.list()
}

// HasPerm reports whether the resolved set grants perm.
//
// Precedence: exact negation, exact grant, namespace negation, namespace
// wildcard, global negation, global wildcard.
func HasPerm(set []string, perm string) bool {
	want := Parse(perm)
	want.Negated = false
	index := make(map[string]struct{}, len(set))
	for _, p := range set {
		index[Normalize(p)] = struct{}{}
	}
	has := func(s string) bool {
		_, ok := index[s]
		return ok
	}

	exact := want.String()
	nsWildcard := want.Namespace + ".*"
	switch {
	case has(Negator + exact):
		return false
	case has(exact):
		return true
	case has(Negator + nsWildcard):
		return false
	case has(nsWildcard):
		return true
	case has(Negator + GlobalWildcard):
		return false
	case has(GlobalWildcard):
		return true
	}
	return false
}

type foldSet struct {
	order []string
	index map[string]int
}

func newFoldSet() *foldSet {
	return &foldSet{index: map[string]int{}}
}

func (f *foldSet) has(p string) bool {
	_, ok := f.index[p]
	return ok
}

func (f *foldSet) add(p string) {
	if f.has(p) {
		return
	}
	f.index[p] = len(f.order)
	f.order = append(f.order, p)
}

func (f *foldSet) removeWhere(match func(Permission) bool) {
	kept := f.order[:0]
	f.index = make(map[string]int, len(f.order))
	for _, p := range f.order {
		if match(Parse(p)) {
			continue
		}
		f.index[p] = len(kept)
		kept = append(kept, p)
	}
	f.order = kept
}

func (f *foldSet) applyAll(perms []string) {
	for _, raw := range perms {
		raw = Normalize(raw)
		if raw == "" || raw == Negator {
			continue
		}
		f.apply(Parse(raw))
	}
}

func (f *foldSet) apply(p Permission) {
	global := p.Namespace == "global" && p.Wildcard()
	inScope := func(other Permission) bool {
		if global {
			return true
		}
		if p.Wildcard() {
			return other.Namespace == p.Namespace
		}
		return other.Namespace == p.Namespace && other.Perm == p.Perm
	}

	if p.Negated {
		f.removeWhere(func(other Permission) bool { return !other.Negated && inScope(other) })
	} else {
		f.removeWhere(func(other Permission) bool { return other.Negated && inScope(other) })
	}
	f.add(p.String())
}

func (f *foldSet) list() []string {
	return append([]string{}, f.order...)
}
