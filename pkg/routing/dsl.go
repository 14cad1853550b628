package routing

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
)

// The rule expression language covers conditions like:
//
//	content contains "sql" and length > 500
//	model == "gpt-4" or (temperature >= 0.9 and not content contains "translate")
//
// Fields: content, length (rune count), model, temperature, max_tokens.
// Operators: contains, ==, !=, <, <=, >, >= combined with and/or/not and
// parentheses. Comparisons between a string field and a number (or vice
// versa) fail at parse time.

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenOp
	tokenLParen
	tokenRParen
	tokenAnd
	tokenOr
	tokenNot
	tokenContains
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer tokenizes a rule expression.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokenLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokenRParen, text: ")", pos: start}, nil

	case c == '"' || c == '\'':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) {
			ch := l.input[l.pos]
			if ch == '\\' && l.pos+1 < len(l.input) {
				sb.WriteByte(l.input[l.pos+1])
				l.pos += 2
				continue
			}
			if ch == quote {
				l.pos++
				return token{kind: tokenString, text: sb.String(), pos: start}, nil
			}
			sb.WriteByte(ch)
			l.pos++
		}
		return token{}, fmt.Errorf("unterminated string at offset %d", start)

	case c >= '0' && c <= '9':
		for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokenNumber, text: l.input[start:l.pos], pos: start}, nil

	case c == '=' || c == '!' || c == '<' || c == '>':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		op := l.input[start:l.pos]
		switch op {
		case "==", "=", "!=", "<", "<=", ">", ">=":
			return token{kind: tokenOp, text: op, pos: start}, nil
		}
		return token{}, fmt.Errorf("unknown operator %q at offset %d", op, start)

	case isIdentStart(rune(c)):
		for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
			l.pos++
		}
		word := l.input[start:l.pos]
		switch strings.ToLower(word) {
		case "and":
			return token{kind: tokenAnd, text: word, pos: start}, nil
		case "or":
			return token{kind: tokenOr, text: word, pos: start}, nil
		case "not":
			return token{kind: tokenNot, text: word, pos: start}, nil
		case "contains":
			return token{kind: tokenContains, text: word, pos: start}, nil
		}
		return token{kind: tokenIdent, text: strings.ToLower(word), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// exprContext is the per-request view the compiled expression reads from.
type exprContext struct {
	content     string
	length      float64
	model       string
	temperature float64
	maxTokens   float64
}

// expr is a compiled boolean expression node.
type expr interface {
	eval(ctx *exprContext) bool
}

type andExpr struct{ left, right expr }

func (e *andExpr) eval(ctx *exprContext) bool { return e.left.eval(ctx) && e.right.eval(ctx) }

type orExpr struct{ left, right expr }

func (e *orExpr) eval(ctx *exprContext) bool { return e.left.eval(ctx) || e.right.eval(ctx) }

type notExpr struct{ inner expr }

func (e *notExpr) eval(ctx *exprContext) bool { return !e.inner.eval(ctx) }

// stringCompare compares a string field against a literal.
type stringCompare struct {
	field string // "content" or "model"
	op    string // "contains", "==", "!="
	value string
}

func (e *stringCompare) eval(ctx *exprContext) bool {
	var fieldVal string
	switch e.field {
	case "content":
		fieldVal = ctx.content
	case "model":
		fieldVal = ctx.model
	}
	switch e.op {
	case "contains":
		return strings.Contains(strings.ToLower(fieldVal), strings.ToLower(e.value))
	case "==", "=":
		return strings.EqualFold(fieldVal, e.value)
	case "!=":
		return !strings.EqualFold(fieldVal, e.value)
	}
	return false
}

// numberCompare compares a numeric field against a literal.
type numberCompare struct {
	field string // "length", "temperature", "max_tokens"
	op    string
	value float64
}

func (e *numberCompare) eval(ctx *exprContext) bool {
	var fieldVal float64
	switch e.field {
	case "length":
		fieldVal = ctx.length
	case "temperature":
		fieldVal = ctx.temperature
	case "max_tokens":
		fieldVal = ctx.maxTokens
	}
	switch e.op {
	case "==", "=":
		return fieldVal == e.value
	case "!=":
		return fieldVal != e.value
	case "<":
		return fieldVal < e.value
	case "<=":
		return fieldVal <= e.value
	case ">":
		return fieldVal > e.value
	case ">=":
		return fieldVal >= e.value
	}
	return false
}

var stringFields = map[string]bool{"content": true, "model": true}
var numberFields = map[string]bool{"length": true, "temperature": true, "max_tokens": true}

// parser is a recursive-descent parser over the lexer's token stream.
type parser struct {
	lex lexer
	cur token
}

// parseExpression compiles an expression string.
func parseExpression(input string) (expr, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected token %q at offset %d", p.cur.text, p.cur.pos)
	}
	return e, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, error) {
	switch p.cur.kind {
	case tokenNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil

	case tokenLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokenRParen {
			return nil, fmt.Errorf("missing closing parenthesis at offset %d", p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (expr, error) {
	if p.cur.kind != tokenIdent {
		return nil, fmt.Errorf("expected field name, got %q at offset %d", p.cur.text, p.cur.pos)
	}
	field := p.cur.text
	fieldPos := p.cur.pos
	if !stringFields[field] && !numberFields[field] {
		return nil, fmt.Errorf("unknown field %q at offset %d", field, fieldPos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.cur.kind {
	case tokenContains:
		if !stringFields[field] {
			return nil, fmt.Errorf("contains requires a string field, got %q at offset %d", field, fieldPos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokenString {
			return nil, fmt.Errorf("contains requires a string literal at offset %d", p.cur.pos)
		}
		e := &stringCompare{field: field, op: "contains", value: p.cur.text}
		return e, p.advance()

	case tokenOp:
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch p.cur.kind {
		case tokenString:
			if !stringFields[field] {
				return nil, fmt.Errorf("field %q cannot be compared with a string at offset %d", field, p.cur.pos)
			}
			if op != "==" && op != "=" && op != "!=" {
				return nil, fmt.Errorf("operator %q not valid for strings at offset %d", op, p.cur.pos)
			}
			e := &stringCompare{field: field, op: op, value: p.cur.text}
			return e, p.advance()

		case tokenNumber:
			if !numberFields[field] {
				return nil, fmt.Errorf("field %q cannot be compared with a number at offset %d", field, p.cur.pos)
			}
			n, err := strconv.ParseFloat(p.cur.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at offset %d", p.cur.text, p.cur.pos)
			}
			e := &numberCompare{field: field, op: op, value: n}
			return e, p.advance()

		default:
			return nil, fmt.Errorf("expected literal after operator at offset %d", p.cur.pos)
		}
	}

	return nil, fmt.Errorf("expected operator after field %q at offset %d", field, fieldPos)
}

// DSLEvaluator matches rules whose condition is a compiled expression.
// Expressions are compiled once per distinct string and cached.
type DSLEvaluator struct {
	mu    sync.Mutex
	cache map[string]expr
	bad   map[string]error
}

// NewDSLEvaluator builds an evaluator with an empty expression cache.
func NewDSLEvaluator() *DSLEvaluator {
	return &DSLEvaluator{
		cache: make(map[string]expr),
		bad:   make(map[string]error),
	}
}

// Matches compiles the rule's expression (cached) and evaluates it against
// the request. A rule with an invalid expression matches nothing and the
// parse error is returned for diagnostics.
func (e *DSLEvaluator) Matches(rule config.RoutingRule, req *providers.ChatRequest) (bool, error) {
	compiled, err := e.compile(rule.Expression)
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	content := req.ContentText()
	ctx := &exprContext{
		content:     content,
		length:      float64(utf8.RuneCountInString(content)),
		model:       req.Model,
		temperature: req.Temperature,
		maxTokens:   float64(req.MaxTokens),
	}
	return compiled.eval(ctx), nil
}

func (e *DSLEvaluator) compile(expression string) (expr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if compiled, ok := e.cache[expression]; ok {
		return compiled, nil
	}
	if err, ok := e.bad[expression]; ok {
		return nil, err
	}
	compiled, err := parseExpression(expression)
	if err != nil {
		e.bad[expression] = err
		return nil, err
	}
	e.cache[expression] = compiled
	return compiled, nil
}
