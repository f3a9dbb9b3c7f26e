package tools

// These twelve structural-edit tools (add_function_to_file through
// replace_method_in_class) mutate Go source by parsing it, splicing its
// declaration list, and re-rendering with go/format so every edit comes
// out gofmt-clean — the same go/parser, go/ast, and go/format trio
// golang-semspec's Go parser (processor/ast/golang) builds its entity
// extraction on, reused here for mutation instead of extraction.
//
// Go has no class statement, so "class" in a tool's name maps to a struct
// type declaration, and "attribute" maps to a struct field (Go has no
// __init__ to attach attributes to). Go has no decorator syntax either;
// add_decorator_to_function records the decorator as a structured doc
// comment above the function, since that is the nearest thing Go offers to
// an annotation a later pass could act on.

import (
	"context"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"strconv"
	"strings"
)

func parseGoSource(path string) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}
	return fset, file, nil
}

func writeGoSource(path string, fset *token.FileSet, file *ast.File) error {
	var buf strings.Builder
	if err := format.Node(&buf, fset, file); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}

// parseSnippetDecls parses snippet as the body of a throwaway package so a
// single function or type declaration supplied by the caller can be lifted
// out and spliced into a real file's Decls.
func parseSnippetDecls(snippet string) ([]ast.Decl, error) {
	fset := token.NewFileSet()
	wrapped := "package aurasnippet\n\n" + snippet
	file, err := parser.ParseFile(fset, "", wrapped, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("snippet does not parse as Go source: %w", err)
	}
	return file.Decls, nil
}

func parseSnippetStmts(snippet string) ([]ast.Stmt, error) {
	fset := token.NewFileSet()
	wrapped := "package aurasnippet\nfunc _() {\n" + snippet + "\n}\n"
	file, err := parser.ParseFile(fset, "", wrapped, 0)
	if err != nil {
		return nil, fmt.Errorf("snippet does not parse as Go statements: %w", err)
	}
	fn, ok := file.Decls[0].(*ast.FuncDecl)
	if !ok {
		return nil, fmt.Errorf("snippet did not produce a function body")
	}
	return fn.Body.List, nil
}

func findFuncDecl(file *ast.File, name, receiverType string) *ast.FuncDecl {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != name {
			continue
		}
		if receiverType == "" {
			return fn
		}
		if fn.Recv == nil || len(fn.Recv.List) == 0 {
			continue
		}
		if receiverTypeName(fn.Recv.List[0].Type) == receiverType {
			return fn
		}
	}
	return nil
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return ""
	}
}

func findStructType(file *ast.File, name string) (*ast.TypeSpec, *ast.StructType) {
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || ts.Name.Name != name {
				continue
			}
			if st, ok := ts.Type.(*ast.StructType); ok {
				return ts, st
			}
		}
	}
	return nil, nil
}

func handleAddFunctionToFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	functionCode, _ := args["function_code"].(string)
	if path == "" || functionCode == "" {
		return "error: path and function_code are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	decls, err := parseSnippetDecls(functionCode)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error()), nil
	}
	file.Decls = append(file.Decls, decls...)
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added function to %s", path), nil
}

func handleAddClassToFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	typeCode, _ := args["type_code"].(string)
	if path == "" || typeCode == "" {
		return "error: path and type_code are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	decls, err := parseSnippetDecls(typeCode)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error()), nil
	}
	file.Decls = append(file.Decls, decls...)
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added type declaration to %s", path), nil
}

func handleAddMethodToClass(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	receiverType, _ := args["receiver_type"].(string)
	methodCode, _ := args["method_code"].(string)
	if path == "" || receiverType == "" || methodCode == "" {
		return "error: path, receiver_type, and method_code are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	if _, st := findStructType(file, receiverType); st == nil {
		return fmt.Sprintf("error: no struct type %q in %s", receiverType, path), nil
	}
	decls, err := parseSnippetDecls(methodCode)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error()), nil
	}
	for _, decl := range decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) == 0 {
			return fmt.Sprintf("error: method_code must be a func declaration with a (%s) receiver", receiverType), nil
		}
	}
	file.Decls = append(file.Decls, decls...)
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added method to %s on %s", path, receiverType), nil
}

func handleAddImport(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	importPath, _ := args["import_path"].(string)
	alias, _ := args["alias"].(string)
	if path == "" || importPath == "" {
		return "error: path and import_path are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}

	for _, imp := range file.Imports {
		if unquote(imp.Path.Value) == importPath {
			return fmt.Sprintf("%s already imports %s", path, importPath), nil
		}
	}

	spec := &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(importPath)}}
	if alias != "" {
		spec.Name = ast.NewIdent(alias)
	}
	file.Imports = append(file.Imports, spec)

	var importDecl *ast.GenDecl
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			importDecl = gen
			break
		}
	}
	if importDecl != nil {
		importDecl.Specs = append(importDecl.Specs, spec)
	} else {
		importDecl = &ast.GenDecl{Tok: token.IMPORT, Lparen: token.Pos(1), Specs: []ast.Spec{spec}}
		file.Decls = append([]ast.Decl{importDecl}, file.Decls...)
	}

	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added import %q to %s", importPath, path), nil
}

func unquote(s string) string {
	v, err := strconv.Unquote(s)
	if err != nil {
		return s
	}
	return v
}

func handleAddParameterToFunction(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	functionName, _ := args["function_name"].(string)
	paramName, _ := args["param_name"].(string)
	paramType, _ := args["param_type"].(string)
	if path == "" || functionName == "" || paramName == "" || paramType == "" {
		return "error: path, function_name, param_name, and param_type are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	fn := findFuncDecl(file, functionName, "")
	if fn == nil {
		return fmt.Sprintf("error: function %q not found in %s", functionName, path), nil
	}
	typeExpr, err := parser.ParseExpr(paramType)
	if err != nil {
		return fmt.Sprintf("error: param_type %q does not parse: %s", paramType, err.Error()), nil
	}
	fn.Type.Params.List = append(fn.Type.Params.List, &ast.Field{
		Names: []*ast.Ident{ast.NewIdent(paramName)},
		Type:  typeExpr,
	})
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added parameter %s to %s in %s", paramName, functionName, path), nil
}

func handleAddAttributeToInit(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	structName, _ := args["struct_name"].(string)
	fieldName, _ := args["field_name"].(string)
	fieldType, _ := args["field_type"].(string)
	if path == "" || structName == "" || fieldName == "" || fieldType == "" {
		return "error: path, struct_name, field_name, and field_type are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	_, st := findStructType(file, structName)
	if st == nil {
		return fmt.Sprintf("error: struct %q not found in %s", structName, path), nil
	}
	typeExpr, err := parser.ParseExpr(fieldType)
	if err != nil {
		return fmt.Sprintf("error: field_type %q does not parse: %s", fieldType, err.Error()), nil
	}
	st.Fields.List = append(st.Fields.List, &ast.Field{
		Names: []*ast.Ident{ast.NewIdent(fieldName)},
		Type:  typeExpr,
	})
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added field %s to struct %s in %s", fieldName, structName, path), nil
}

func handleAddDecoratorToFunction(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	functionName, _ := args["function_name"].(string)
	decorator, _ := args["decorator"].(string)
	if path == "" || functionName == "" || decorator == "" {
		return "error: path, function_name, and decorator are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	fn := findFuncDecl(file, functionName, "")
	if fn == nil {
		return fmt.Sprintf("error: function %q not found in %s", functionName, path), nil
	}
	comment := &ast.Comment{Text: "// +decorator:" + decorator}
	if fn.Doc == nil {
		fn.Doc = &ast.CommentGroup{}
	}
	fn.Doc.List = append(fn.Doc.List, comment)
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("recorded decorator %q above %s in %s", decorator, functionName, path), nil
}

func handleRenameSymbolInFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	oldName, _ := args["old_name"].(string)
	newName, _ := args["new_name"].(string)
	if path == "" || oldName == "" || newName == "" {
		return "error: path, old_name, and new_name are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	renamed := 0
	ast.Inspect(file, func(n ast.Node) bool {
		if ident, ok := n.(*ast.Ident); ok && ident.Name == oldName {
			ident.Name = newName
			renamed++
		}
		return true
	})
	if renamed == 0 {
		return fmt.Sprintf("error: symbol %q not found in %s", oldName, path), nil
	}
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("renamed %d occurrence(s) of %s to %s in %s", renamed, oldName, newName, path), nil
}

func handleAppendToFunction(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	functionName, _ := args["function_name"].(string)
	code, _ := args["code"].(string)
	if path == "" || functionName == "" || code == "" {
		return "error: path, function_name, and code are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	fn := findFuncDecl(file, functionName, "")
	if fn == nil {
		return fmt.Sprintf("error: function %q not found in %s", functionName, path), nil
	}
	stmts, err := parseSnippetStmts(code)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error()), nil
	}
	fn.Body.List = append(fn.Body.List, stmts...)
	if err := writeGoSource(path, fset, file); err != nil {
		return nil, err
	}
	return fmt.Sprintf("appended to %s in %s", functionName, path), nil
}

// handleReplaceNodeInFile is textual rather than structural: the tool's
// argument shape (old/new snippet, no line/column selector) gives it
// nothing to resolve a unique AST node against, so it replaces the first
// exact source match instead. Structural replacement of a named
// declaration is what replace_method_in_class is for.
func handleReplaceNodeInFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	oldSnippet, _ := args["old_snippet"].(string)
	newSnippet, _ := args["new_snippet"].(string)
	if path == "" || oldSnippet == "" {
		return "error: path and old_snippet are required", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("error: could not read %s: %s", path, err.Error()), nil
	}
	source := string(data)
	if !strings.Contains(source, oldSnippet) {
		return fmt.Sprintf("error: old_snippet not found in %s", path), nil
	}
	replaced := strings.Replace(source, oldSnippet, newSnippet, 1)
	formatted, err := format.Source([]byte(replaced))
	if err != nil {
		// Not every replacement yields valid Go (e.g. editing a fragment);
		// write the raw replacement rather than fail the whole invocation.
		formatted = []byte(replaced)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("replaced node in %s", path), nil
}

func handleReplaceMethodInClass(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	receiverType, _ := args["receiver_type"].(string)
	methodName, _ := args["method_name"].(string)
	newMethodCode, _ := args["new_method_code"].(string)
	if path == "" || receiverType == "" || methodName == "" || newMethodCode == "" {
		return "error: path, receiver_type, method_name, and new_method_code are required", nil
	}
	fset, file, err := parseGoSource(path)
	if err != nil {
		return fmt.Sprintf("error: could not parse %s: %s", path, err.Error()), nil
	}
	decls, err := parseSnippetDecls(newMethodCode)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error()), nil
	}
	if len(decls) != 1 {
		return "error: new_method_code must contain exactly one function declaration", nil
	}
	newFn, ok := decls[0].(*ast.FuncDecl)
	if !ok {
		return "error: new_method_code must be a func declaration", nil
	}

	for i, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != methodName {
			continue
		}
		if fn.Recv == nil || len(fn.Recv.List) == 0 || receiverTypeName(fn.Recv.List[0].Type) != receiverType {
			continue
		}
		file.Decls[i] = newFn
		if err := writeGoSource(path, fset, file); err != nil {
			return nil, err
		}
		return fmt.Sprintf("replaced method %s on %s in %s", methodName, receiverType, path), nil
	}
	return fmt.Sprintf("error: method %s on %s not found in %s", methodName, receiverType, path), nil
}

// handleCreatePackageInit is the Go analog of an __init__.py-style
// package marker: Go packages have no such file, so this creates a doc.go
// carrying the package clause and a package-level doc comment, matching
// the convention the standard library itself uses for package-only
// documentation files.
func handleCreatePackageInit(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	packageName, _ := args["package_name"].(string)
	if path == "" || packageName == "" {
		return "error: path and package_name are required", nil
	}
	content := fmt.Sprintf("// Package %s is generated scaffolding.\npackage %s\n", packageName, packageName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("created package init file %s", path), nil
}
