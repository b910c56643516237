// Package parser implements the field/value query grammar: one statement
// per line, `+`/`-`/absent operators, range forms, escapes, and the fuzzy/
// prefix value modifiers.
package parser

import (
	"fmt"
	"strings"

	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// Op is the boolean operator joining a statement to the statements before it.
type Op uint8

const (
	OpOR Op = iota // absent prefix
	OpAND          // '+'
	OpNOT          // '-'
)

// Modifier selects how a statement's value resolves against a term tree.
type Modifier uint8

const (
	ModExact Modifier = iota
	ModFuzzy          // trailing '~'
	ModPrefix         // trailing '*'
)

// Node is one parsed statement. Exact/fuzzy/prefix statements carry Value
// (and, if the value tokenized to more than one term, a Then-chain of
// sibling nodes sharing Key/Modifier/Op — the inner conjunction within the
// statement). Range statements carry RangeLo and/or RangeHi instead.
type Node struct {
	Op       Op
	Key      string
	Value    string
	Modifier Modifier

	IsRange  bool
	RangeLo  string
	RangeHi  string
	HasLo    bool
	HasHi    bool

	Then *Node // inner conjunction: additional terms from the same statement's value
	Next *Node // top-level inter-statement chain, in source order
}

// Parse parses the query language from spec §4.8. An empty (or
// all-whitespace) query returns a nil head and no error. A statement
// missing its key/value separator returns ErrParse.
func Parse(query string) (*Node, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	lines := strings.Split(strings.ReplaceAll(query, "\r\n", "\n"), "\n")

	var head, tail *Node
	appendNode := func(n *Node) {
		if tryMergeRange(tail, n) {
			return
		}
		if head == nil {
			head = n
		} else {
			tail.Next = n
		}
		tail = n
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n, err := parseStatement(line)
		if err != nil {
			return nil, err
		}
		appendNode(n)
	}
	return head, nil
}

// tryMergeRange folds a range statement into the immediately preceding
// range node on the same key when joined by '+' and the preceding node is
// missing the bound this one supplies — this is the "combined with + on
// consecutive statements" rule from §4.8.
func tryMergeRange(tail, n *Node) bool {
	if tail == nil || !tail.IsRange || !n.IsRange || n.Op != OpAND || tail.Key != n.Key {
		return false
	}
	merged := false
	if n.HasLo && !tail.HasLo {
		tail.RangeLo, tail.HasLo = n.RangeLo, true
		merged = true
	}
	if n.HasHi && !tail.HasHi {
		tail.RangeHi, tail.HasHi = n.RangeHi, true
		merged = true
	}
	return merged
}

func parseStatement(line string) (*Node, error) {
	op := OpOR
	rest := line
	switch {
	case strings.HasPrefix(rest, "+"):
		op = OpAND
		rest = rest[1:]
	case strings.HasPrefix(rest, "-"):
		op = OpNOT
		rest = rest[1:]
	}

	sepIdx := strings.IndexAny(rest, ":<>")
	if sepIdx < 0 {
		return nil, fmt.Errorf("%w: missing ':' in statement %q", tderrors.ErrParse, line)
	}
	key := rest[:sepIdx]
	sep := rest[sepIdx]
	rawValue := rest[sepIdx+1:]

	if sep == '<' || sep == '>' {
		value, _ := unescapeOrTrimModifier(rawValue)
		n := &Node{Op: op, Key: key, IsRange: true}
		if sep == '<' {
			n.RangeHi, n.HasHi = value, true
		} else {
			n.RangeLo, n.HasLo = value, true
		}
		return n, nil
	}

	value, modifier := unescapeOrTrimModifier(rawValue)
	terms := strings.Fields(value)
	if len(terms) == 0 {
		terms = []string{value}
	}
	head := &Node{Op: op, Key: key, Value: terms[0], Modifier: modifier}
	cur := head
	for _, t := range terms[1:] {
		next := &Node{Op: op, Key: key, Value: t, Modifier: modifier}
		cur.Then = next
		cur = next
	}
	return head, nil
}

// unescapeOrTrimModifier strips a \...\ verbatim escape (returning ModExact
// unconditionally), or else trims a trailing '~'/'*' modifier suffix.
func unescapeOrTrimModifier(raw string) (string, Modifier) {
	if len(raw) >= 2 && strings.HasPrefix(raw, `\`) && strings.HasSuffix(raw, `\`) {
		return raw[1 : len(raw)-1], ModExact
	}
	if strings.HasSuffix(raw, "~") {
		return strings.TrimSuffix(raw, "~"), ModFuzzy
	}
	if strings.HasSuffix(raw, "*") {
		return strings.TrimSuffix(raw, "*"), ModPrefix
	}
	return raw, ModExact
}
