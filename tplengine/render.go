package tplengine

import (
	"fmt"
	"strconv"
	"strings"
)

// Item is one row rendered by a loop region.
type Item map[string]any

// Context drives a single evaluation of a parsed template.
type Context struct {
	// Loops expands every loop region whose name is a key, one body per item.
	// Regions named elsewhere are kept as written.
	Loops map[string][]Item
	// Vars evaluates conditional regions. A nil map keeps them as written.
	Vars map[string]string
	// Values fills placeholders that the current loop item does not define.
	Values map[string]string
}

// Render evaluates nodes in one pass. Every substituted value is written as
// plain text and is never parsed again.
func Render(nodes []Node, ctx Context) string {
	var b strings.Builder
	ctx.render(&b, nodes, nil)
	return b.String()
}

func (c Context) render(b *strings.Builder, nodes []Node, item Item) {
	for _, n := range nodes {
		switch t := n.(type) {
		case *Placeholder:
			if v, ok := item[t.Name]; ok {
				b.WriteString(FormatValue(v))
				continue
			}
			if v, ok := c.Values[t.Name]; ok {
				b.WriteString(v)
				continue
			}
			t.source(b)
		case *Loop:
			items, ok := c.Loops[t.Name]
			if !ok {
				b.WriteString(t.Open)
				c.render(b, t.Body, item)
				b.WriteString(loopClose)
				continue
			}
			for _, it := range items {
				c.render(b, t.Body, it)
				b.WriteByte('\n')
			}
		case *Cond:
			if c.Vars == nil {
				b.WriteString(t.Open)
				c.render(b, t.Body, item)
				b.WriteString(condClose)
				continue
			}
			if Eval(t.Expr, c.Vars) {
				c.render(b, t.Body, item)
			}
		default:
			n.source(b)
		}
	}
}

// ExpandLoop replaces every [loop name=1] region with one copy of its body per
// item, each copy followed by a newline. Templates without the marker are
// returned unchanged and an empty list collapses the region.
func ExpandLoop(src, name string, items []Item) string {
	return Render(Parse(src), Context{Loops: map[string][]Item{name: items}})
}

// ExpandConditionals keeps the body of every [if ...] region whose condition
// holds and drops the others. A condition is either a name, true when vars
// holds a non-empty value for it, or name=value.
func ExpandConditionals(src string, vars map[string]string) string {
	if vars == nil {
		vars = map[string]string{}
	}
	return Render(Parse(src), Context{Vars: vars})
}

func Eval(expr string, vars map[string]string) bool {
	if k, v, ok := strings.Cut(expr, "="); ok {
		got, found := vars[strings.TrimSpace(k)]
		return found && got == strings.TrimSpace(v)
	}
	return vars[strings.TrimSpace(expr)] != ""
}

func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, FormatValue(e))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
