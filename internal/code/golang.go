package code

import (
	"context"
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strings"
)

// GoParser builds a Module from Go source. Named types become classes and
// methods attach to their receiver type when it is declared in the same file.
type GoParser struct{}

func NewGoParser() *GoParser {
	return &GoParser{}
}

func (p *GoParser) Language() Language { return LanguageGo }

func (p *GoParser) Parse(_ context.Context, src []byte) (*Module, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, goSyntaxError(err)
	}

	line := func(pos token.Pos) int { return fset.Position(pos).Line }
	span := func(n ast.Node) Span {
		s := Span{Start: line(n.Pos()), End: line(n.End())}
		if s.End < s.Start {
			s.End = s.Start
		}
		return s
	}

	classes := make(map[string]*ClassNode)
	var nodes []Node

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			cls := &ClassNode{Name: ts.Name.Name}

			doc := ts.Doc
			var node ast.Node = ts
			if !gen.Lparen.IsValid() {
				// single declaration: span includes the type keyword
				doc = gen.Doc
				node = gen
			}
			if doc != nil {
				cls.Docstring = strings.TrimSpace(doc.Text())
			}
			cls.Span = span(node)
			cls.Bases, cls.Attributes = goTypeMembers(ts.Type)

			classes[cls.Name] = cls
			nodes = append(nodes, cls)
		}
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		var doc string
		if fn.Doc != nil {
			doc = strings.TrimSpace(fn.Doc.Text())
		}
		params := goParams(fn.Type.Params)

		if fn.Recv == nil || len(fn.Recv.List) == 0 {
			nodes = append(nodes, &FunctionNode{
				Name:      fn.Name.Name,
				Params:    params,
				Docstring: doc,
				Span:      span(fn),
			})
			continue
		}

		recv := receiverType(fn.Recv.List[0].Type)
		m := &MethodNode{
			Name:      fn.Name.Name,
			ClassName: recv,
			Params:    params,
			Kind:      InstanceMethod,
			Docstring: doc,
			Span:      span(fn),
		}
		if cls, ok := classes[recv]; ok {
			cls.Methods = append(cls.Methods, m)
			continue
		}
		nodes = append(nodes, m)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].NodeSpan().Start < nodes[j].NodeSpan().Start
	})
	return &Module{Language: LanguageGo, Nodes: nodes}, nil
}

// goTypeMembers splits a type expression into embedded types and named
// members (struct fields or interface methods).
func goTypeMembers(expr ast.Expr) (bases, attrs []string) {
	var fields *ast.FieldList
	switch t := expr.(type) {
	case *ast.StructType:
		fields = t.Fields
	case *ast.InterfaceType:
		fields = t.Methods
	default:
		return nil, nil
	}
	if fields == nil {
		return nil, nil
	}
	for _, f := range fields.List {
		if len(f.Names) == 0 {
			bases = append(bases, exprString(f.Type))
			continue
		}
		for _, n := range f.Names {
			attrs = append(attrs, n.Name)
		}
	}
	return bases, attrs
}

func goParams(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var names []string
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			names = append(names, "_")
			continue
		}
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return exprString(expr)
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	}
	return "?"
}

func goSyntaxError(err error) *SyntaxError {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &SyntaxError{Line: first.Pos.Line, Column: first.Pos.Column, Msg: first.Msg}
	}
	return &SyntaxError{Msg: err.Error()}
}
