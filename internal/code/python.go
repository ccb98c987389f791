package code

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParser builds a Module from Python source using tree-sitter.
type PythonParser struct{}

func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

func (p *PythonParser) Language() Language { return LanguagePython }

func (p *PythonParser) Parse(ctx context.Context, src []byte) (*Module, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, pySyntaxError(root)
	}

	w := &pyWalker{src: src}
	w.walk(root)
	sort.SliceStable(w.nodes, func(i, j int) bool {
		return w.nodes[i].NodeSpan().Start < w.nodes[j].NodeSpan().Start
	})
	return &Module{Language: LanguagePython, Nodes: w.nodes}, nil
}

type pyWalker struct {
	src   []byte
	nodes []Node
}

// walk visits statements outside classes. Function bodies are descended so
// nested functions are extracted too.
func (w *pyWalker) walk(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		def, _ := unwrapDecorated(child, w.src)
		switch def.Type() {
		case "function_definition":
			w.nodes = append(w.nodes, &FunctionNode{
				Name:      w.text(def.ChildByFieldName("name")),
				Params:    pyParams(def.ChildByFieldName("parameters"), w.src),
				Docstring: pyDocstring(def.ChildByFieldName("body"), w.src),
				Span:      pySpan(def),
			})
			if body := def.ChildByFieldName("body"); body != nil {
				w.walk(body)
			}
		case "class_definition":
			w.class(def)
		default:
			w.walk(child)
		}
	}
}

func (w *pyWalker) class(def *sitter.Node) {
	cls := &ClassNode{
		Name:      w.text(def.ChildByFieldName("name")),
		Bases:     pyBases(def.ChildByFieldName("superclasses"), w.src),
		Docstring: pyDocstring(def.ChildByFieldName("body"), w.src),
		Span:      pySpan(def),
	}
	w.nodes = append(w.nodes, cls)

	body := def.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt, decorators := unwrapDecorated(body.NamedChild(i), w.src)
		switch stmt.Type() {
		case "function_definition":
			params := pyParams(stmt.ChildByFieldName("parameters"), w.src)
			cls.Methods = append(cls.Methods, &MethodNode{
				Name:       w.text(stmt.ChildByFieldName("name")),
				ClassName:  cls.Name,
				Params:     params,
				Decorators: decorators,
				Kind:       ClassifyMethod(decorators, params),
				Docstring:  pyDocstring(stmt.ChildByFieldName("body"), w.src),
				Span:       pySpan(stmt),
			})
		case "class_definition":
			w.class(stmt)
		case "expression_statement":
			cls.Attributes = append(cls.Attributes, pyAssignedNames(stmt, w.src)...)
		}
	}
}

func (w *pyWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

// unwrapDecorated returns the definition inside a decorated_definition along
// with its decorator expressions, e.g. "staticmethod" or "name.setter".
func unwrapDecorated(n *sitter.Node, src []byte) (*sitter.Node, []string) {
	if n.Type() != "decorated_definition" {
		return n, nil
	}
	var decorators []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "decorator" || child.NamedChildCount() == 0 {
			continue
		}
		expr := child.NamedChild(0)
		if expr.Type() == "call" {
			if fn := expr.ChildByFieldName("function"); fn != nil {
				expr = fn
			}
		}
		decorators = append(decorators, expr.Content(src))
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return n, decorators
	}
	return def, decorators
}

func pySpan(n *sitter.Node) Span {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	// a node ending at column 0 stops before that line
	if n.EndPoint().Column == 0 && end > start {
		end--
	}
	if end < start {
		end = start
	}
	return Span{Start: start, End: end}
}

func pyParams(params *sitter.Node, src []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		if name := pyParamName(params.NamedChild(i), src); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func pyParamName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "default_parameter", "typed_default_parameter":
		if name := n.ChildByFieldName("name"); name != nil {
			return pyParamName(name, src)
		}
	case "typed_parameter":
		if n.NamedChildCount() > 0 {
			return pyParamName(n.NamedChild(0), src)
		}
	case "list_splat_pattern":
		if n.NamedChildCount() > 0 {
			return "*" + pyParamName(n.NamedChild(0), src)
		}
	case "dictionary_splat_pattern":
		if n.NamedChildCount() > 0 {
			return "**" + pyParamName(n.NamedChild(0), src)
		}
	}
	return ""
}

func pyBases(args *sitter.Node, src []byte) []string {
	if args == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" || arg.Type() == "comment" {
			continue
		}
		bases = append(bases, arg.Content(src))
	}
	return bases
}

// pyAssignedNames returns plain names bound by an assignment statement,
// following chained assignments such as a = b = 1. Bare annotations like
// b: int bind nothing.
func pyAssignedNames(stmt *sitter.Node, src []byte) []string {
	if stmt.NamedChildCount() == 0 {
		return nil
	}
	var names []string
	assign := stmt.NamedChild(0)
	for assign != nil && assign.Type() == "assignment" {
		right := assign.ChildByFieldName("right")
		if right == nil {
			break
		}
		if left := assign.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			names = append(names, left.Content(src))
		}
		assign = right
	}
	return names
}

func pyDocstring(body *sitter.Node, src []byte) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return cleanDocstring(str.Content(src))
}

// cleanDocstring strips the quotes of a string literal and removes the
// common indentation of its continuation lines.
func cleanDocstring(literal string) string {
	s := strings.TrimLeft(literal, "rRuUbBfF")
	switch {
	case len(s) >= 6 && (strings.HasPrefix(s, `"""`) || strings.HasPrefix(s, `'''`)):
		s = s[3 : len(s)-3]
	case len(s) >= 2:
		s = s[1 : len(s)-1]
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.ReplaceAll(s, "\t", "    "), "\n")
	indent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" {
			continue
		}
		if n := len(line) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if indent > 0 && len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		}
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func pySyntaxError(root *sitter.Node) *SyntaxError {
	bad := firstErrorNode(root)
	if bad == nil {
		return &SyntaxError{Msg: "invalid syntax"}
	}
	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Type())
	}
	return &SyntaxError{
		Line:   int(bad.StartPoint().Row) + 1,
		Column: int(bad.StartPoint().Column) + 1,
		Msg:    msg,
	}
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}
