// Package trie implements the left-child/right-sibling character trie: the
// first-generation term tree, supporting exact, prefix, near (fuzzy), and
// range lookups, plus a streaming preorder serialization.
package trie

import (
	"sort"

	"github.com/lattice-io/termdex/internal/block"
)

// Node is one LCRS trie node. Child is the first child (left), Sibling is
// the next sibling (right). EndOfWord marks a node whose root-to-here path
// spells an indexed term; such nodes own a postings address once the term
// has been flushed to the postings store.
type Node struct {
	CodeUnit  rune
	EndOfWord bool
	Postings  block.Block
	HasPostings bool

	// DocIDs accumulates the doc-ids inserted at this end-of-word node
	// during the current build; it is builder-only state, never
	// serialized, and is cleared once Flush posts it to the postings store.
	DocIDs []int64

	Child   *Node
	Sibling *Node
}

// Trie is the in-memory LCRS trie for one field.
type Trie struct {
	root *Node // sentinel; root.Child is the first top-level code unit
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: &Node{}}
}

// Insert walks the sibling chain at each depth, adding a new sibling if no
// code unit matches, descending into the child otherwise. It returns the
// terminal end-of-word node so the caller can later attach a postings
// address.
func (t *Trie) Insert(term string) *Node {
	runes := []rune(term)
	parent := t.root
	for _, r := range runes {
		parent = insertChild(parent, r)
	}
	parent.EndOfWord = true
	return parent
}

// InsertDoc inserts term (if not already present) and records docID against
// its terminal node, for later posting to the postings store at flush time.
func (t *Trie) InsertDoc(term string, docID int64) *Node {
	n := t.Insert(term)
	n.DocIDs = append(n.DocIDs, docID)
	return n
}

// Walk invokes fn for every end-of-word node in the trie, passing the term
// it spells. Used by the write session to post accumulated doc-ids to the
// postings store at flush time.
func (t *Trie) Walk(fn func(term string, n *Node)) {
	var walk func(n *Node, path []rune)
	walk = func(n *Node, path []rune) {
		if n.EndOfWord {
			fn(string(path), n)
		}
		for c := n.Child; c != nil; c = c.Sibling {
			walk(c, append(path, c.CodeUnit))
		}
	}
	for c := t.root.Child; c != nil; c = c.Sibling {
		walk(c, []rune{c.CodeUnit})
	}
}

// insertChild finds or creates the child of parent carrying code unit r,
// keeping the sibling chain sorted by code unit so starts-with/range
// enumerate lexicographically without a separate sort pass.
func insertChild(parent *Node, r rune) *Node {
	if parent.Child == nil {
		parent.Child = &Node{CodeUnit: r}
		return parent.Child
	}
	var prev *Node
	cur := parent.Child
	for cur != nil {
		if cur.CodeUnit == r {
			return cur
		}
		if cur.CodeUnit > r {
			break
		}
		prev = cur
		cur = cur.Sibling
	}
	n := &Node{CodeUnit: r, Sibling: cur}
	if prev == nil {
		parent.Child = n
	} else {
		prev.Sibling = n
	}
	return n
}

// Has reports whether term is an indexed term: depth-first descent, at each
// depth skipping siblings until the code unit matches.
func (t *Trie) Has(term string) bool {
	n := t.descend([]rune(term))
	return n != nil && n.EndOfWord
}

// Lookup returns the terminal node for term, or nil if not present.
func (t *Trie) Lookup(term string) *Node {
	n := t.descend([]rune(term))
	if n != nil && n.EndOfWord {
		return n
	}
	return nil
}

func (t *Trie) descend(runes []rune) *Node {
	cur := t.root
	for _, r := range runes {
		child := findSibling(cur.Child, r)
		if child == nil {
			return nil
		}
		cur = child
	}
	return cur
}

func findSibling(n *Node, r rune) *Node {
	for n != nil {
		if n.CodeUnit == r {
			return n
		}
		n = n.Sibling
	}
	return nil
}

// StartsWith enumerates, in lexicographic order, every indexed term with
// the given prefix.
func (t *Trie) StartsWith(prefix string) []string {
	prefixRunes := []rune(prefix)
	base := t.descend(prefixRunes)
	if base == nil {
		return nil
	}
	var out []string
	var walk func(n *Node, path []rune)
	walk = func(n *Node, path []rune) {
		if n.EndOfWord {
			out = append(out, string(append(append([]rune{}, prefixRunes...), path...)))
		}
		for c := n.Child; c != nil; c = c.Sibling {
			walk(c, append(path, c.CodeUnit))
		}
	}
	// base itself may be end-of-word when prefix is itself an indexed term.
	if base.EndOfWord {
		out = append(out, string(prefixRunes))
	}
	for c := base.Child; c != nil; c = c.Sibling {
		walk(c, []rune{c.CodeUnit})
	}
	sort.Strings(out)
	return out
}

// NearMatch is one fuzzy-search hit.
type NearMatch struct {
	Term     string
	Distance int
}

// Near performs a depth-first walk tracking the running Levenshtein
// distance against term, pruning whenever the minimum achievable distance
// at the current depth already exceeds maxEdits. Results are sorted
// ascending by distance; ties keep the cursor's (lexicographic) visit
// order, matching the streaming reader's traversal order.
func (t *Trie) Near(term string, maxEdits int) []NearMatch {
	target := []rune(term)
	var out []NearMatch
	// prevRow[j] = edit distance between the empty prefix-so-far and target[:j]
	prevRow := make([]int, len(target)+1)
	for j := range prevRow {
		prevRow[j] = j
	}
	var walk func(n *Node, path []rune, prevRow []int)
	walk = func(n *Node, path []rune, prevRow []int) {
		depth := len(path)
		minPossible := prevRow[0]
		for _, v := range prevRow {
			if v < minPossible {
				minPossible = v
			}
		}
		if minPossible > maxEdits {
			return
		}
		if n.EndOfWord && depth > 0 {
			dist := prevRow[len(target)]
			if dist <= maxEdits {
				out = append(out, NearMatch{Term: string(path), Distance: dist})
			}
		}
		for c := n.Child; c != nil; c = c.Sibling {
			row := make([]int, len(target)+1)
			row[0] = depth + 1
			for j := 1; j <= len(target); j++ {
				cost := 1
				if target[j-1] == c.CodeUnit {
					cost = 0
				}
				del := prevRow[j] + 1
				ins := row[j-1] + 1
				sub := prevRow[j-1] + cost
				m := del
				if ins < m {
					m = ins
				}
				if sub < m {
					m = sub
				}
				row[j] = m
			}
			walk(c, append(path, c.CodeUnit), row)
		}
	}
	for c := t.root.Child; c != nil; c = c.Sibling {
		row := make([]int, len(target)+1)
		row[0] = 1
		for j := 1; j <= len(target); j++ {
			cost := 1
			if target[j-1] == c.CodeUnit {
				cost = 0
			}
			del := prevRow[j] + 1
			ins := row[j-1] + 1
			sub := prevRow[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			row[j] = m
		}
		walk(c, []rune{c.CodeUnit}, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// Range enumerates indexed terms lexicographically between lo and hi,
// inclusive at both ends when the endpoints exist as indexed terms, and
// strict-lexicographic comparison otherwise — the endpoints need not
// themselves be indexed.
func (t *Trie) Range(lo, hi string) []string {
	all := t.StartsWith("")
	out := make([]string, 0, len(all))
	for _, term := range all {
		if term >= lo && term <= hi {
			out = append(out, term)
		}
	}
	return out
}
