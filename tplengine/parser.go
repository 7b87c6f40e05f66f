package tplengine

import (
	"regexp"
	"strings"
)

var (
	loopOpenRe    = regexp.MustCompile(`^\[loop\s+([^\s=\]]+)=1\]`)
	condOpenRe    = regexp.MustCompile(`^\[if\s+([^\]]+)\]`)
	placeholderRe = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokPlaceholder
	tokLoopOpen
	tokCondOpen
	tokLoopClose
	tokCondClose
)

type token struct {
	kind tokenKind
	raw  string
	arg  string
	// match is the index of the paired opener or closer, -1 when unpaired.
	match int
}

// Parse never fails: an opener without its closer, or a closer without an
// opener, is kept as literal text. Closers are paired with a single scan, so
// parsing is linear in the number of markers.
func Parse(src string) []Node {
	tokens := tokenize(src)
	pair(tokens)
	return build(tokens, 0, len(tokens))
}

func tokenize(src string) []token {
	// nextBracket[i] is the index of the first ']' at or after i, or -1.
	nextBracket := make([]int, len(src)+1)
	nextBracket[len(src)] = -1
	for i := len(src) - 1; i >= 0; i-- {
		if src[i] == ']' {
			nextBracket[i] = i
		} else {
			nextBracket[i] = nextBracket[i+1]
		}
	}

	var (
		tokens []token
		text   strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, token{kind: tokText, raw: text.String(), match: -1})
			text.Reset()
		}
	}
	emit := func(kind tokenKind, raw, arg string) {
		flush()
		tokens = append(tokens, token{kind: kind, raw: raw, arg: arg, match: -1})
	}

	for pos := 0; pos < len(src); {
		rest := src[pos:]

		switch rest[0] {
		case '[':
			switch {
			case strings.HasPrefix(rest, loopClose):
				emit(tokLoopClose, loopClose, "")
				pos += len(loopClose)
				continue
			case strings.HasPrefix(rest, condClose):
				emit(tokCondClose, condClose, "")
				pos += len(condClose)
				continue
			}

			if end := nextBracket[pos]; end > 0 {
				candidate := src[pos : end+1]
				if m := loopOpenRe.FindStringSubmatch(candidate); m != nil {
					emit(tokLoopOpen, m[0], m[1])
					pos += len(m[0])
					continue
				}
				if m := condOpenRe.FindStringSubmatch(candidate); m != nil {
					emit(tokCondOpen, m[0], m[1])
					pos += len(m[0])
					continue
				}
			}
		case '{':
			if m := placeholderRe.FindStringSubmatch(rest); m != nil {
				emit(tokPlaceholder, m[0], m[1])
				pos += len(m[0])
				continue
			}
		}

		text.WriteByte(rest[0])
		pos++
	}

	flush()
	return tokens
}

// pair matches every closer with the nearest open region of its kind.
// Openers left inside a closed region without their own closer stay unpaired.
func pair(tokens []token) {
	var stack []int
	open := map[tokenKind]int{}
	opener := map[tokenKind]tokenKind{tokLoopClose: tokLoopOpen, tokCondClose: tokCondOpen}

	for i := range tokens {
		switch tokens[i].kind {
		case tokLoopOpen, tokCondOpen:
			stack = append(stack, i)
			open[tokens[i].kind]++
		case tokLoopClose, tokCondClose:
			want := opener[tokens[i].kind]
			if open[want] == 0 {
				continue
			}
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				open[tokens[top].kind]--
				if tokens[top].kind == want {
					tokens[top].match = i
					tokens[i].match = top
					break
				}
			}
		}
	}
}

func build(tokens []token, lo, hi int) []Node {
	var (
		nodes []Node
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, &Text{Value: text.String()})
			text.Reset()
		}
	}

	for i := lo; i < hi; i++ {
		tok := tokens[i]
		switch {
		case tok.kind == tokPlaceholder:
			flush()
			nodes = append(nodes, &Placeholder{Name: tok.arg})
		case tok.kind == tokLoopOpen && tok.match > i:
			flush()
			nodes = append(nodes, &Loop{Name: tok.arg, Open: tok.raw, Body: build(tokens, i+1, tok.match)})
			i = tok.match
		case tok.kind == tokCondOpen && tok.match > i:
			flush()
			nodes = append(nodes, &Cond{Expr: tok.arg, Open: tok.raw, Body: build(tokens, i+1, tok.match)})
			i = tok.match
		default:
			text.WriteString(tok.raw)
		}
	}

	flush()
	return nodes
}
