// Package alias implements the bidirectional alias/real-domain map and the
// literal substitution engine built on top of it.
package alias

import (
	"fmt"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Entry is a single alias-to-real domain mapping.
type Entry struct {
	Alias string
	Real  string
}

// ConflictingAliasesError is returned by Build when two configured aliases
// violate the non-containment invariant.
type ConflictingAliasesError struct {
	A, B string
}

func (e *ConflictingAliasesError) Error() string {
	return fmt.Sprintf("conflicting aliases: %q and %q", e.A, e.B)
}

// Table is an immutable, validated bidirectional alias<->real domain map.
// Once built it is safe for unsynchronized concurrent reads from any number
// of goroutines.
type Table struct {
	entries []Entry
	forward map[string]string // alias -> real
	reverse map[string]string // real -> alias

	restoreTrie *ahocorasick.Trie // matches aliases, replaces with real
	replaceTrie *ahocorasick.Trie // matches real domains, replaces with alias
}

// Build validates entries against the non-containment invariant and
// constructs a Table. Entries are retained in declared order; substitution
// does not consult that order (see substitute).
func Build(entries []Entry) (*Table, error) {
	forward := make(map[string]string, len(entries))
	reverse := make(map[string]string, len(entries))

	aliases := make([]string, 0, len(entries))
	for _, e := range entries {
		forward[e.Alias] = e.Real
		reverse[e.Real] = e.Alias
		aliases = append(aliases, e.Alias)
	}

	for i := 0; i < len(aliases); i++ {
		for j := i + 1; j < len(aliases); j++ {
			a, b := aliases[i], aliases[j]
			if a == b {
				continue
			}
			if strings.Contains(a, b) || strings.Contains(b, a) {
				return nil, &ConflictingAliasesError{A: a, B: b}
			}
		}
	}

	t := &Table{
		entries: append([]Entry(nil), entries...),
		forward: forward,
		reverse: reverse,
	}

	aliasKeys := make([]string, 0, len(entries))
	realKeys := make([]string, 0, len(entries))
	for _, e := range t.entries {
		aliasKeys = append(aliasKeys, e.Alias)
		realKeys = append(realKeys, e.Real)
	}
	if len(aliasKeys) > 0 {
		t.restoreTrie = ahocorasick.NewTrieBuilder().AddStrings(aliasKeys).Build()
		t.replaceTrie = ahocorasick.NewTrieBuilder().AddStrings(realKeys).Build()
	}

	return t, nil
}

// RealFor returns the real domain for an alias and whether it was found.
func (t *Table) RealFor(alias string) (string, bool) {
	v, ok := t.forward[alias]
	return v, ok
}

// AliasFor returns the alias for a real domain and whether it was found.
func (t *Table) AliasFor(real string) (string, bool) {
	v, ok := t.reverse[real]
	return v, ok
}

// ForwardSubstitute returns s with every alias occurrence replaced by its
// real domain (the "restore", inbound direction). Substitution is
// case-sensitive and uses a single Aho-Corasick pass, which given the
// non-containment invariant is equivalent to iterating entries and doing a
// naive literal replace.
func (t *Table) ForwardSubstitute(s string) string {
	if t.restoreTrie == nil {
		return s
	}
	return substitute(t.restoreTrie, s, t.forward)
}

// ReverseSubstitute returns s with every real-domain occurrence replaced by
// its alias (the "replace", outbound direction), in a single Aho-Corasick
// pass. Where real-domain matches overlap, the one the trie reports first is
// applied and the others are skipped; declared entry order is not used to
// choose between them.
func (t *Table) ReverseSubstitute(s string) string {
	if t.replaceTrie == nil {
		return s
	}
	return substitute(t.replaceTrie, s, t.reverse)
}

// substitute walks the matches found by trie over s in the order the trie
// reports them, replacing each matched substring via lookup and skipping any
// match that starts before the end of one already applied.
func substitute(trie *ahocorasick.Trie, s string, lookup map[string]string) string {
	matches := trie.MatchString(s)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	cursor := 0
	lastEnd := -1
	for _, m := range matches {
		pos := int(m.Pos())
		pattern := string(m.Match())
		end := pos + len(pattern)
		if pos < lastEnd {
			// overlaps a previously applied match; skip (leftmost-first wins)
			continue
		}
		replacement, ok := lookup[pattern]
		if !ok {
			continue
		}
		b.WriteString(s[cursor:pos])
		b.WriteString(replacement)
		cursor = end
		lastEnd = end
	}
	b.WriteString(s[cursor:])
	return b.String()
}
