//go:build !cgo

package tools

// PythonSyntax accepts all code when tree-sitter is unavailable; the
// interpreter still reports syntax errors at run time.
func PythonSyntax(string) error { return nil }
