// Package aucm compiles the aucm text language into synth program bytes.
//
// A source file holds one node:
//
//	instrument {
//		osc { shape = square; }
//		env { attack = 0; decay = 2; release = 3; }
//	}
//
// Fields are assigned with `name = value;`, containers nest child nodes and
// multiplex nodes map note ranges to children with `range(start, count, dest)`.
// The identifier help anywhere in the source prints documentation for that
// spot instead of compiling.
package aucm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/eggtone/synth/field"
	"github.com/eggtone/synth/node"
)

type (
	// Compiler turns aucm source into program bytes.
	Compiler struct {
		// Help receives the documentation printed for help tokens; nil
		// discards it.
		Help io.Writer
	}

	astNode struct {
		typ      *node.Type
		tok      Token
		values   map[byte]field.Value
		tokens   map[byte]Token
		env      *envSource
		coefs    []float64
		coefsTok Token
		children []*astNode
		ranges   []astRange
	}

	astRange struct {
		start, count, dest int
		tok                Token
		child              *astNode
	}

	// scope is what the parser is inside of, for help.
	scope struct {
		typ    *node.Type
		field  *node.Field
		format string
		key    string
	}

	parser struct {
		lex    *lexer
		tok    Token
		peeked bool
		scopes []scope
		help   io.Writer
		err    error
	}
)

// Instrument compiles a source holding one root node into the node's bytes.
func (c *Compiler) Instrument(path string, src []byte) ([]byte, error) {
	p := c.parser(path, src)
	n, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return p.emit(n)
}

// Sound compiles a source holding one node and wraps it in a multiplex node
// that plays it for note only, so that sounds can be merged into a bank.
func (c *Compiler) Sound(path string, src []byte, note byte) ([]byte, error) {
	if note >= 128 {
		return nil, fmt.Errorf("%v: note %d out of range", path, note)
	}
	body, err := c.Instrument(path, src)
	if err != nil {
		return nil, err
	}
	return wrapSound(body, note)
}

func (c *Compiler) parser(path string, src []byte) *parser {
	help := c.Help
	if help == nil {
		help = io.Discard
	}
	return &parser{lex: newLexer(path, src), help: help}
}

// fail records err unless an error is already recorded, and returns the
// recorded one.
func (p *parser) fail(err error) error {
	if p.err == nil {
		p.err = err
	}
	return p.err
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	n := len(tok.Text)
	return p.fail(p.lex.errorAt(tok.Offset, tok.Line, tok.Col, n, format, args...))
}

func (p *parser) peek() (Token, error) {
	if p.err != nil {
		return Token{}, p.err
	}
	if !p.peeked {
		tok, err := p.lex.next()
		if err != nil {
			return Token{}, p.fail(err)
		}
		p.tok, p.peeked = tok, true
	}
	if p.tok.Kind == TokenIdent && p.tok.Text == "help" {
		return p.tok, p.showHelp()
	}
	return p.tok, nil
}

func (p *parser) next() (Token, error) {
	tok, err := p.peek()
	p.peeked = false
	return tok, err
}

func (p *parser) expect(text string) (Token, error) {
	tok, err := p.next()
	if err != nil {
		return tok, err
	}
	if !tok.Is(text) {
		return tok, p.errorf(tok, "expected %q, got %v", text, tok)
	}
	return tok, nil
}

func (p *parser) push(s scope) {
	p.scopes = append(p.scopes, s)
}

func (p *parser) pop() {
	p.scopes = p.scopes[:len(p.scopes)-1]
}

func (p *parser) parseProgram() (*astNode, error) {
	n, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokenEOF {
		return nil, p.errorf(tok, "expected end of file after the %v node, got %v", n.typ.Name, tok)
	}
	return n, nil
}

func (p *parser) parseNode() (*astNode, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokenIdent {
		return nil, p.errorf(tok, "expected a node type, got %v", tok)
	}
	return p.parseNodeBody(tok)
}

func (p *parser) parseNodeBody(typeTok Token) (*astNode, error) {
	t, err := node.LookupName(typeTok.Text)
	if err != nil {
		return nil, p.errorf(typeTok, "unknown node type %q", typeTok.Text)
	}
	n := &astNode{typ: t, tok: typeTok, values: map[byte]field.Value{}, tokens: map[byte]Token{}}
	p.push(scope{typ: t})
	defer p.pop()
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch {
		case tok.Is("}"):
			p.next()
			return n, nil
		case tok.Kind == TokenEOF:
			return nil, p.errorf(typeTok, "unterminated %v node", t.Name)
		}
		if err := p.parseStmt(n); err != nil {
			return nil, err
		}
	}
}

func principalFormat(t *node.Type) string {
	if f := t.Principal(); f != nil {
		return f.Format
	}
	return ""
}

func (p *parser) parseStmt(n *astNode) error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != TokenIdent {
		return p.errorf(tok, "expected a field of %v, got %v", n.typ.Name, tok)
	}
	after, err := p.peek()
	if err != nil {
		return err
	}
	format := principalFormat(n.typ)
	switch {
	case after.Is("{"):
		if format != "nodes" {
			return p.errorf(tok, "a %v node cannot contain nodes", n.typ.Name)
		}
		child, err := p.parseNodeBody(tok)
		if err != nil {
			return err
		}
		n.children = append(n.children, child)
		return nil
	case after.Is("("):
		if format != "ranges" || tok.Text != "range" {
			return p.errorf(tok, "unexpected %v(", tok.Text)
		}
		return p.parseRange(n, tok)
	case !after.Is("="):
		return p.errorf(after, "expected \"=\" after %v, got %v", tok.Text, after)
	}
	p.next()
	if f := n.typ.FieldByName(tok.Text); f != nil {
		return p.parseField(n, f, tok)
	}
	if format == "envelope" {
		return p.parseEnvKey(n, tok)
	}
	return p.errorf(tok, "%v has no field %q", n.typ.Name, tok.Text)
}

// parseValues reads `value (, value)* ;` after the equals sign.
func (p *parser) parseValues() ([]Token, error) {
	var ret []Token
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokenNumber, TokenIdent, TokenString:
		default:
			return nil, p.errorf(tok, "expected a value, got %v", tok)
		}
		ret = append(ret, tok)
		sep, err := p.next()
		if err != nil {
			return nil, err
		}
		if sep.Is(";") {
			return ret, nil
		}
		if !sep.Is(",") {
			return nil, p.errorf(sep, "expected \",\" or \";\", got %v", sep)
		}
	}
}

func (p *parser) parseField(n *astNode, f *node.Field, nameTok Token) error {
	p.push(scope{typ: n.typ, field: f})
	defer p.pop()
	vals, err := p.parseValues()
	if err != nil {
		return err
	}
	if f.Modes&node.ModeSerial != 0 {
		if f.Format != "coefficients" {
			return p.errorf(nameTok, "%v is not assigned directly; see help", f.Name)
		}
		if n.coefs != nil {
			return p.errorf(nameTok, "%v assigned twice", f.Name)
		}
		for _, v := range vals {
			x, err := p.number(v, 0, 1)
			if err != nil {
				return err
			}
			n.coefs = append(n.coefs, x)
		}
		n.coefsTok = nameTok
		return nil
	}
	if len(vals) != 1 {
		return p.errorf(vals[1], "%v takes one value", f.Name)
	}
	if _, dup := n.values[f.ID]; dup {
		return p.errorf(nameTok, "%v assigned twice", f.Name)
	}
	v, err := p.fieldValue(f, vals[0])
	if err != nil {
		return err
	}
	n.values[f.ID] = v
	n.tokens[f.ID] = vals[0]
	return nil
}

func (p *parser) fieldValue(f *node.Field, tok Token) (field.Value, error) {
	if tok.Kind == TokenNumber {
		switch {
		case f.Modes&node.ModeFloat != 0:
			if tok.Number <= -32768 || tok.Number >= 32768 {
				return field.Value{}, p.errorf(tok, "%v out of range for %v", tok.Text, f.Name)
			}
			return field.Value{Kind: field.KindFloat, Float: float32(tok.Number)}, nil
		case f.Modes&node.ModeInt != 0:
			hi := 255.0
			if f.Enum != nil {
				hi = float64(len(f.Enum) - 1)
			}
			i, err := p.integer(tok, 0, int(hi))
			return field.Value{Kind: field.KindInt, Int: i}, err
		}
		return field.Value{}, p.errorf(tok, "%v takes no constants", f.Name)
	}
	text := tok.Text
	if tok.Kind == TokenString {
		text = tok.Unquoted
	}
	if target, ok := parseTarget(text); ok && tok.Kind == TokenIdent {
		if !f.Modes.Accepts(target) {
			return field.Value{}, p.errorf(tok, "%v cannot be linked to %v", f.Name, target)
		}
		return field.Value{Kind: field.KindLink, Target: target}, nil
	}
	if f.Enum != nil {
		if i, ok := f.EnumValue(text); ok {
			return field.Value{Kind: field.KindInt, Int: i}, nil
		}
		return field.Value{}, p.errorf(tok, "%q is not one of %v", text, strings.Join(f.Enum, ", "))
	}
	return field.Value{}, p.errorf(tok, "%v does not take %v", f.Name, tok)
}

// parseTarget parses buf0..buf15, noteid and notehz.
func parseTarget(s string) (field.Target, bool) {
	switch s {
	case "noteid":
		return field.TargetNoteID, true
	case "notehz":
		return field.TargetNoteHz, true
	}
	if rest, ok := strings.CutPrefix(s, "buf"); ok {
		i, err := strconv.Atoi(rest)
		if err == nil && i >= 0 && i < field.NumBuffers && strconv.Itoa(i) == rest {
			return field.Target(i), true
		}
	}
	return 0, false
}

func (p *parser) number(tok Token, lo, hi float64) (float64, error) {
	if tok.Kind != TokenNumber {
		return 0, p.errorf(tok, "expected a number, got %v", tok)
	}
	if tok.Number < lo || tok.Number > hi {
		return 0, p.errorf(tok, "%v out of range %v..%v", tok.Text, lo, hi)
	}
	return tok.Number, nil
}

func (p *parser) integer(tok Token, lo, hi int) (int, error) {
	v, err := p.number(tok, float64(lo), float64(hi))
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, p.errorf(tok, "%v is not an integer", tok.Text)
	}
	return int(v), nil
}

// parseRange reads `range(start[, count[, dest]]) node` of a multiplex.
func (p *parser) parseRange(n *astNode, rangeTok Token) error {
	p.push(scope{typ: n.typ, format: "ranges", key: "range"})
	defer p.pop()
	p.next()
	var args []int
	for {
		tok, err := p.next()
		if err != nil {
			return err
		}
		if len(args) == 3 {
			return p.errorf(tok, "range takes at most 3 arguments")
		}
		v, err := p.integer(tok, 0, 128)
		if err != nil {
			return err
		}
		args = append(args, v)
		sep, err := p.next()
		if err != nil {
			return err
		}
		if sep.Is(")") {
			break
		}
		if !sep.Is(",") {
			return p.errorf(sep, "expected \",\" or \")\", got %v", sep)
		}
	}
	r := astRange{start: args[0], count: 1, dest: args[0], tok: rangeTok}
	if len(args) > 1 {
		r.count = args[1]
	}
	if len(args) > 2 {
		r.dest = args[2]
	}
	if r.count == 0 || r.start+r.count > 128 || r.dest+r.count > 128 {
		return p.errorf(rangeTok, "range %d+%d to %d does not fit in notes 0..127", r.start, r.count, r.dest)
	}
	child, err := p.parseNode()
	if err != nil {
		return err
	}
	r.child = child
	n.ranges = append(n.ranges, r)
	return nil
}
