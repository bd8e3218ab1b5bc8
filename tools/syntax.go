//go:build cgo

package tools

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// PythonSyntax parses code with tree-sitter-python and reports the first
// ERROR or MISSING node as a *SyntaxError.
func PythonSyntax(code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return fmt.Errorf("set parser language: %w", err)
	}

	source := []byte(code)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return fmt.Errorf("parser returned nil tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil
	}
	if root.HasError() {
		if err := firstError(root, source); err != nil {
			return err
		}
		return &SyntaxError{Line: 1, Column: 1, Message: "invalid syntax"}
	}
	if se := firstEmptyBody(root); se != nil {
		return se
	}
	return nil
}

// compound maps statements to the field holding their suite. tree-sitter
// recovers from a missing indent by producing an empty block, which Python
// rejects. An empty field name means the suite is the trailing block child.
var compound = map[string]string{
	"function_definition": "body",
	"class_definition":    "body",
	"if_statement":        "consequence",
	"elif_clause":         "consequence",
	"else_clause":         "body",
	"for_statement":       "body",
	"while_statement":     "body",
	"with_statement":      "body",
	"try_statement":       "body",
	"except_clause":       "",
	"finally_clause":      "",
}

func firstEmptyBody(n *tree_sitter.Node) *SyntaxError {
	if n == nil {
		return nil
	}

	if field, ok := compound[n.Kind()]; ok {
		body := suite(n, field)
		if body == nil || statements(body) == 0 {
			pos := n.EndPosition()
			if body != nil {
				pos = body.StartPosition()
			}
			return &SyntaxError{
				Line:    int(pos.Row) + 1,
				Column:  int(pos.Column) + 1,
				Message: fmt.Sprintf("expected an indented block after %s", strings.ReplaceAll(n.Kind(), "_", " ")),
			}
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if se := firstEmptyBody(n.Child(i)); se != nil {
			return se
		}
	}
	return nil
}

func suite(n *tree_sitter.Node, field string) *tree_sitter.Node {
	if field != "" {
		return n.ChildByFieldName(field)
	}
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(uint(i)); c != nil && c.Kind() == "block" {
			return c
		}
	}
	return nil
}

func statements(block *tree_sitter.Node) int {
	count := 0
	for i := uint(0); i < block.NamedChildCount(); i++ {
		if c := block.NamedChild(i); c != nil && !c.IsExtra() {
			count++
		}
	}
	return count
}

func firstError(n *tree_sitter.Node, source []byte) *SyntaxError {
	if n == nil {
		return nil
	}

	if n.IsError() || n.IsMissing() {
		pos := n.StartPosition()
		se := &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1}
		if n.IsMissing() {
			se.Message = fmt.Sprintf("missing %s", n.Kind())
		} else {
			text := strings.TrimSpace(string(source[n.StartByte():n.EndByte()]))
			if i := strings.IndexByte(text, '\n'); i >= 0 {
				text = text[:i]
			}
			se.Message = fmt.Sprintf("invalid syntax near %q", text)
		}
		return se
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if se := firstError(n.Child(i), source); se != nil {
			return se
		}
	}
	return nil
}
