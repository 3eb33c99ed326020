package graph

import "sort"

// UnresolvedReference collects every internal-looking literal that pointed at
// the same missing path
type UnresolvedReference struct {
	GuessedPath string // absolute
	Referrers   map[int64]struct{}
	Literals    map[string]struct{}
}

// ReferrerIDs returns the referring module IDs, sorted
func (u *UnresolvedReference) ReferrerIDs() []int64 {
	ids := make([]int64, 0, len(u.Referrers))
	for id := range u.Referrers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LiteralList returns the literals, sorted
func (u *UnresolvedReference) LiteralList() []string {
	lits := make([]string, 0, len(u.Literals))
	for lit := range u.Literals {
		lits = append(lits, lit)
	}
	sort.Strings(lits)
	return lits
}

// UnresolvedIndex maps a guessed path to the modules that reference it.
// It is only written by the build aggregator.
type UnresolvedIndex struct {
	entries map[string]*UnresolvedReference
}

// NewUnresolvedIndex creates an empty index
func NewUnresolvedIndex() *UnresolvedIndex {
	return &UnresolvedIndex{entries: make(map[string]*UnresolvedReference)}
}

// Add records that module from referenced guessedPath via literal
func (x *UnresolvedIndex) Add(guessedPath string, from int64, literal string) {
	entry, ok := x.entries[guessedPath]
	if !ok {
		entry = &UnresolvedReference{
			GuessedPath: guessedPath,
			Referrers:   make(map[int64]struct{}),
			Literals:    make(map[string]struct{}),
		}
		x.entries[guessedPath] = entry
	}
	entry.Referrers[from] = struct{}{}
	entry.Literals[literal] = struct{}{}
}

// Get returns the entry for a guessed path
func (x *UnresolvedIndex) Get(guessedPath string) (*UnresolvedReference, bool) {
	entry, ok := x.entries[guessedPath]
	return entry, ok
}

// Len returns the number of distinct missing paths
func (x *UnresolvedIndex) Len() int {
	return len(x.entries)
}

// Entries returns all entries ordered by guessed path
func (x *UnresolvedIndex) Entries() []*UnresolvedReference {
	out := make([]*UnresolvedReference, 0, len(x.entries))
	for _, entry := range x.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuessedPath < out[j].GuessedPath })
	return out
}
