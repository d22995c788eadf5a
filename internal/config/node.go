// Package config implements the directive-block configuration format used
// by postald and the standalone event/queue-inspection binaries, and the
// reflection-light Map helper components use to read their own options
// out of a parsed block.
//
//	queue local {
//	    location /var/lib/postal/queue
//	    max_memory 256M
//	}
package config

import (
	"fmt"
	"io"
)

// Node describes one parsed directive or block:
//
//	name arg0 arg1 {
//	    child0
//	    child1
//	}
type Node struct {
	Name     string
	Args     []string
	Children []Node

	File string
	Line int
}

// NodeErr formats err with the node's source location prefixed, if known.
func NodeErr(node Node, f string, args ...interface{}) error {
	msg := fmt.Sprintf(f, args...)
	if node.File == "" {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, msg)
}

// Read parses r into a sequence of top-level Nodes. file is recorded on
// every Node for error reporting only.
func Read(r io.Reader, file string) ([]Node, error) {
	lx, err := newLexer(r)
	if err != nil {
		return nil, err
	}

	var toks []token
	for {
		t, ok := lx.next()
		if !ok {
			if lx.lastErr != nil {
				return nil, lx.lastErr
			}
			break
		}
		toks = append(toks, t)
	}

	p := &parser{toks: toks, file: file}
	nodes, err := p.block()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%s:%d: unexpected '}'", file, p.toks[p.pos].Line)
	}
	return nodes, nil
}

type parser struct {
	toks []token
	pos  int
	file string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// block parses a sequence of directives until EOF or a closing '}' (which
// is left unconsumed so the caller can detect mismatched braces).
//
// A directive's arguments are every token on its starting physical line;
// like the rest of the pack's block-style formats, a newline (not a
// terminator token) is what separates one directive from the next, so
// args stop being collected as soon as a token's Line differs from the
// line the directive's name was on.
func (p *parser) block() ([]Node, error) {
	var nodes []Node
	for {
		t, ok := p.peek()
		if !ok || t.Text == "}" {
			return nodes, nil
		}

		node := Node{Name: t.Text, File: p.file, Line: t.Line}
		p.pos++
		curLine := t.Line

		for {
			t, ok := p.peek()
			if !ok || t.Text == "}" || t.Line != curLine {
				break
			}
			if t.Text == "{" {
				p.pos++
				children, err := p.block()
				if err != nil {
					return nil, err
				}
				closing, ok := p.peek()
				if !ok || closing.Text != "}" {
					return nil, fmt.Errorf("%s:%d: expected '}' to close block", p.file, node.Line)
				}
				p.pos++
				node.Children = children
				curLine = -1 // block consumes the rest of the directive
				break
			}
			node.Args = append(node.Args, t.Text)
			p.pos++
		}

		nodes = append(nodes, node)
	}
}
