package code

import (
	"context"
	"fmt"
	"strings"
)

type Language string

const (
	LanguagePython Language = "python"
	LanguageGo     Language = "go"
)

type MethodKind string

const (
	InstanceMethod MethodKind = "instance_method"
	ClassMethod    MethodKind = "class_method"
	StaticMethod   MethodKind = "static_method"
	Property       MethodKind = "property"
)

// Span is a 1-based inclusive line range.
type Span struct {
	Start int
	End   int
}

// Node is one of *FunctionNode, *ClassNode or *MethodNode.
type Node interface {
	NodeSpan() Span
	node()
}

type FunctionNode struct {
	Name      string
	Params    []string
	Docstring string
	Span      Span
}

// ClassNode owns the methods defined directly in its body, in source order.
type ClassNode struct {
	Name       string
	Bases      []string
	Attributes []string
	Docstring  string
	Span       Span
	Methods    []*MethodNode
}

type MethodNode struct {
	Name       string
	ClassName  string
	Params     []string
	Decorators []string
	Kind       MethodKind
	Docstring  string
	Span       Span
}

func (n *FunctionNode) NodeSpan() Span { return n.Span }
func (n *ClassNode) NodeSpan() Span    { return n.Span }
func (n *MethodNode) NodeSpan() Span   { return n.Span }

func (*FunctionNode) node() {}
func (*ClassNode) node()    {}
func (*MethodNode) node()   {}

// MethodNames lists the names of the class methods in source order.
func (n *ClassNode) MethodNames() []string {
	names := make([]string, 0, len(n.Methods))
	for _, m := range n.Methods {
		names = append(names, m.Name)
	}
	return names
}

// Module is the parsed form of one source file. Nodes are ordered by their
// starting line.
type Module struct {
	Language Language
	Nodes    []Node
}

// Parser turns file content into a Module. Malformed input yields a
// *SyntaxError.
type Parser interface {
	Language() Language
	Parse(ctx context.Context, src []byte) (*Module, error)
}

type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s (line %d, column %d)", e.Msg, e.Line, e.Column)
}

// ClassifyMethod derives the method kind from decorators first and the
// first-parameter convention second.
func ClassifyMethod(decorators, params []string) MethodKind {
	hasDecorator := func(names ...string) bool {
		for _, d := range decorators {
			last := d[strings.LastIndex(d, ".")+1:]
			for _, name := range names {
				if last == name {
					return true
				}
			}
		}
		return false
	}

	switch {
	case hasDecorator("staticmethod"):
		return StaticMethod
	case hasDecorator("classmethod"):
		return ClassMethod
	case hasDecorator("property", "cached_property", "abstractproperty", "setter", "getter", "deleter"):
		return Property
	case len(params) > 0 && params[0] == "cls":
		return ClassMethod
	default:
		return InstanceMethod
	}
}
