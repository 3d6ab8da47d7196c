package store

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// Query is a parsed search expression, independent of engine.
//
// Grammar:
//
//	expr    := and ( "OR" and )*
//	and     := unary ( ["AND"] unary )*
//	unary   := ( "-" | "NOT" ) primary | primary
//	primary := "(" expr ")" | [field ":"] ( PHRASE | WORD ["*"] )
//
// Adjacent terms are ANDed. A term without a field matches any of the
// search fields it is rendered against.
type Query struct {
	Root Node
}

// Node is one element of a parsed query.
type Node interface {
	String() string
}

// Term matches a word or phrase, optionally restricted to one field.
type Term struct {
	Field  string
	Text   string
	Phrase bool
	Prefix bool
}

// And matches documents that match every Must node and no MustNot node.
type And struct {
	Must    []Node
	MustNot []Node
}

// Or matches documents that match any node.
type Or struct {
	Any []Node
}

func (t *Term) String() string {
	var sb strings.Builder
	if t.Field != "" {
		sb.WriteString(t.Field)
		sb.WriteByte(':')
	}
	if t.Phrase {
		sb.WriteString(`"` + t.Text + `"`)
	} else {
		sb.WriteString(t.Text)
	}
	if t.Prefix {
		sb.WriteByte('*')
	}
	return sb.String()
}

func (a *And) String() string {
	parts := make([]string, 0, len(a.Must)+len(a.MustNot))
	for _, n := range a.Must {
		parts = append(parts, n.String())
	}
	for _, n := range a.MustNot {
		parts = append(parts, "-"+n.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (o *Or) String() string {
	parts := make([]string, len(o.Any))
	for i, n := range o.Any {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// String returns the canonical form of the query.
func (q *Query) String() string {
	if q == nil || q.Root == nil {
		return ""
	}
	return q.Root.String()
}

// Empty reports whether the query contains no terms.
func (q *Query) Empty() bool {
	return q == nil || q.Root == nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokField
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind   tokenKind
	text   string
	prefix bool
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '"'
}

func lex(input string) ([]token, error) {
	rs := []rune(input)
	var toks []token

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case r == '"':
			end := i + 1
			for end < len(rs) && rs[end] != '"' {
				end++
			}
			if end >= len(rs) {
				return nil, errors.QueryError("unbalanced quote")
			}
			tok := token{kind: tokPhrase, text: strings.TrimSpace(string(rs[i+1 : end]))}
			i = end + 1
			if i < len(rs) && rs[i] == '*' {
				return nil, errors.QueryError("prefix wildcard is only supported on single words")
			}
			if tok.text == "" {
				return nil, errors.QueryError("empty phrase")
			}
			toks = append(toks, tok)
		case r == '-' && i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) && rs[i+1] != ')':
			toks = append(toks, token{kind: tokNot})
			i++
		default:
			end := i
			for end < len(rs) && !isBoundary(rs[end]) {
				end++
			}
			word := string(rs[i:end])
			i = end
			toks = append(toks, wordTokens(word)...)
		}
	}
	return toks, nil
}

// wordTokens classifies one bare word: operator, field prefix, or term.
func wordTokens(word string) []token {
	switch word {
	case "AND":
		return []token{{kind: tokAnd}}
	case "OR":
		return []token{{kind: tokOr}}
	case "NOT":
		return []token{{kind: tokNot}}
	}

	if name, rest, ok := strings.Cut(word, ":"); ok && IsSearchField(name) {
		field := token{kind: tokField, text: name}
		if rest == "" {
			return []token{field}
		}
		return append([]token{field}, wordTokens(rest)...)
	}

	tok := token{kind: tokWord, text: word}
	if len(word) > 1 && strings.HasSuffix(word, "*") {
		tok.text = strings.TrimRight(word, "*")
		tok.prefix = true
		if tok.text == "" {
			tok.text = word
			tok.prefix = false
		}
	}
	return []token{tok}
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func startsUnary(k tokenKind) bool {
	switch k {
	case tokWord, tokPhrase, tokField, tokLParen, tokNot:
		return true
	}
	return false
}

func (p *parser) parseOr(field string) (Node, error) {
	first, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}
	nodes := []Node{first}
	for p.peek().kind == tokOr {
		p.next()
		if !startsUnary(p.peek().kind) {
			return nil, errors.QueryError("OR must be followed by a term")
		}
		n, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return first, nil
	}
	return &Or{Any: nodes}, nil
}

func (p *parser) parseAnd(field string) (Node, error) {
	and := &And{}
	for {
		k := p.peek().kind
		if k == tokAnd {
			p.next()
			if !startsUnary(p.peek().kind) {
				return nil, errors.QueryError("AND must be followed by a term")
			}
			k = p.peek().kind
		}
		if !startsUnary(k) {
			break
		}

		negated := false
		if k == tokNot {
			p.next()
			negated = true
		}
		n, err := p.parsePrimary(field)
		if err != nil {
			return nil, err
		}
		if negated {
			and.MustNot = append(and.MustNot, n)
		} else {
			and.Must = append(and.Must, n)
		}
	}

	if len(and.Must) == 0 && len(and.MustNot) == 0 {
		return nil, errors.QueryError("expected a search term")
	}
	if len(and.Must) == 0 {
		return nil, errors.QueryError("a query cannot consist only of negated terms")
	}
	if len(and.Must) == 1 && len(and.MustNot) == 0 {
		return and.Must[0], nil
	}
	return and, nil
}

func (p *parser) parsePrimary(field string) (Node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		n, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, errors.QueryError("unbalanced parenthesis")
		}
		return n, nil
	case tokField:
		if !startsUnary(p.peek().kind) || p.peek().kind == tokNot {
			return nil, errors.QueryError(fmt.Sprintf("field %q must be followed by a term", t.text))
		}
		return p.parsePrimary(t.text)
	case tokWord:
		return &Term{Field: field, Text: t.text, Prefix: t.prefix}, nil
	case tokPhrase:
		return &Term{Field: field, Text: t.text, Phrase: true}, nil
	case tokEOF:
		return nil, errors.QueryError("unexpected end of query")
	case tokRParen:
		return nil, errors.QueryError("unbalanced parenthesis")
	default:
		return nil, errors.QueryError("expected a search term")
	}
}

// ParseQuery parses a user query. A blank string yields an empty Query.
// Syntax errors match errors.ErrQueryParse.
func ParseQuery(input string) (*Query, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return &Query{}, nil
	}

	p := &parser{toks: toks}
	root, err := p.parseOr("")
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		if p.peek().kind == tokRParen {
			return nil, errors.QueryError("unbalanced parenthesis")
		}
		return nil, errors.QueryError("unexpected token in query")
	}
	return &Query{Root: root}, nil
}

// searchFields resolves the fields a term is matched against.
func searchFields(t *Term, defaults []string) []string {
	if t.Field != "" {
		return []string{t.Field}
	}
	return defaults
}
