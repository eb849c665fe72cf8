//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expand is the logic-less string-expansion engine spec.md 4.C
// describes only by its callback contract. No pack library offers a
// pluggable ctemplate/Mustache engine, so this tokenizer/walker is our own
// implementation of the engine side of that contract; internal/render is our
// implementation of the other side (the callbacks the engine invokes). A
// small subset of Mustache syntax is supported: "{{key}}" substitution,
// "{{.}}" for the current section's own value, and "{{#key}}...{{/key}}"
// sections, which iterate when key selects an array, render their body once
// when key selects a present non-array entry, and render nothing when key is
// absent.
package expand

import (
	"fmt"
	"strings"

	"github.com/paul-chambers/templatefs/internal/render"
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVar
	nodeSectionStart
	nodeSectionEnd
)

type node struct {
	kind nodeKind
	text string // nodeText
	name string // nodeVar, nodeSectionStart, nodeSectionEnd
}

// tokenize splits src into a flat list of text/var/section-boundary nodes.
// Unterminated "{{" is treated as literal text, matching a logic-less
// engine's usual tolerance of stray delimiters.
func tokenize(src string) []node {
	var nodes []node
	for {
		start := strings.Index(src, "{{")
		if start < 0 {
			if src != "" {
				nodes = append(nodes, node{kind: nodeText, text: src})
			}
			return nodes
		}
		if start > 0 {
			nodes = append(nodes, node{kind: nodeText, text: src[:start]})
		}
		end := strings.Index(src[start:], "}}")
		if end < 0 {
			nodes = append(nodes, node{kind: nodeText, text: src[start:]})
			return nodes
		}
		tag := src[start+2 : start+end]
		src = src[start+end+2:]

		switch {
		case strings.HasPrefix(tag, "#"):
			nodes = append(nodes, node{kind: nodeSectionStart, name: strings.TrimSpace(tag[1:])})
		case strings.HasPrefix(tag, "/"):
			nodes = append(nodes, node{kind: nodeSectionEnd, name: strings.TrimSpace(tag[1:])})
		default:
			nodes = append(nodes, node{kind: nodeVar, name: strings.TrimSpace(tag)})
		}
	}
}

// Render expands src against ctx, a render.Context already positioned at
// start() by the caller.
func Render(ctx *render.Context, src string) (string, error) {
	nodes := tokenize(src)
	var out strings.Builder
	if err := renderNodes(ctx, nodes, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

func renderNodes(ctx *render.Context, nodes []node, out *strings.Builder) error {
	i := 0
	for i < len(nodes) {
		n := nodes[i]
		switch n.kind {
		case nodeText:
			out.WriteString(n.text)
			i++

		case nodeVar:
			if err := renderVar(ctx, n.name, out); err != nil {
				return err
			}
			i++

		case nodeSectionStart:
			end, err := matchingEnd(nodes, i, n.name)
			if err != nil {
				return err
			}
			if err := renderSection(ctx, n.name, nodes[i+1:end], out); err != nil {
				return err
			}
			i = end + 1

		case nodeSectionEnd:
			return fmt.Errorf("expand: unmatched {{/%s}}", n.name)
		}
	}
	return nil
}

func matchingEnd(nodes []node, start int, name string) (int, error) {
	depth := 0
	for i := start + 1; i < len(nodes); i++ {
		switch nodes[i].kind {
		case nodeSectionStart:
			if nodes[i].name == name {
				depth++
			}
		case nodeSectionEnd:
			if nodes[i].name == name {
				if depth == 0 {
					return i, nil
				}
				depth--
			}
		}
	}
	return 0, fmt.Errorf("expand: unterminated {{#%s}}", name)
}

func renderVar(ctx *render.Context, name string, out *strings.Builder) error {
	if name == "." {
		v, rc := render.Get(ctx, 0)
		if rc == 1 {
			out.WriteString(v)
		}
		return nil
	}

	rc := render.Sel(ctx, name)
	if rc != 1 {
		return nil // absent: a logic-less engine renders nothing, not an error
	}
	v, grc := render.Get(ctx, 0)
	if grc == 1 {
		out.WriteString(v)
	}
	return nil
}

func renderSection(ctx *render.Context, name string, body []node, out *strings.Builder) error {
	rc := render.Sel(ctx, name)
	if rc != 1 {
		return nil
	}

	if !render.TopIsArray(ctx) {
		// Not array-shaped: a logic-less section on a present, non-array key
		// renders its body exactly once, with no cursor advance.
		if render.Enter(ctx, 0) != 1 {
			return fmt.Errorf("expand: enter failed for section %q", name)
		}
		err := renderNodes(ctx, body, out)
		if lrc := render.Leave(ctx); lrc != 1 {
			return fmt.Errorf("expand: leave failed for section %q", name)
		}
		return err
	}

	for {
		if render.Enter(ctx, 0) != 1 {
			return fmt.Errorf("expand: enter failed for section %q", name)
		}
		err := renderNodes(ctx, body, out)
		if lrc := render.Leave(ctx); lrc != 1 {
			return fmt.Errorf("expand: leave failed for section %q", name)
		}
		if err != nil {
			return err
		}
		if render.Next(ctx) != 1 {
			return nil
		}
	}
}
