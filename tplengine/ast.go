package tplengine

import "strings"

const (
	loopClose = "[/loop]"
	condClose = "[/if]"
)

// Node is one element of a parsed prompt template.
type Node interface {
	// source writes the node back exactly as it appeared in the template.
	source(b *strings.Builder)
}

type Text struct {
	Value string
}

// Placeholder is a {field} reference.
type Placeholder struct {
	Name string
}

// Loop is a [loop NAME=1]...[/loop] region.
type Loop struct {
	Name string
	Open string
	Body []Node
}

// Cond is an [if COND]...[/if] region.
type Cond struct {
	Expr string
	Open string
	Body []Node
}

func (t *Text) source(b *strings.Builder) {
	b.WriteString(t.Value)
}

func (p *Placeholder) source(b *strings.Builder) {
	b.WriteString("{" + p.Name + "}")
}

func (l *Loop) source(b *strings.Builder) {
	b.WriteString(l.Open)
	writeSource(b, l.Body)
	b.WriteString(loopClose)
}

func (c *Cond) source(b *strings.Builder) {
	b.WriteString(c.Open)
	writeSource(b, c.Body)
	b.WriteString(condClose)
}

func writeSource(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		n.source(b)
	}
}
