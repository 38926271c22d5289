package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits on where expressions.
const (
	MaxExprLength = 64 * 1024
	MaxExprTokens = 1000
	MaxExprDepth  = 100
)

// Where keeps the records matching a boolean expression such as
//
//	Airline = 'SQ' AND (Cancelled = 1 OR ArrDelay > 15)
//
// Comparisons use =, !=, <>, <, <=, >, >=, ~ (regex), IN (...), NOT IN
// (...), IS NULL and IS NOT NULL, combined with AND, OR, NOT and
// parentheses. Keywords are case-insensitive. Field names containing
// spaces or operators are written in backquotes. Each comparison behaves
// exactly like the equivalent Filter predicate.
type Where struct {
	Expr string
}

// Kind implements Stage.
func (Where) Kind() string { return "where" }

func (w Where) compile(*compiler) (stepFunc, error) {
	m, err := parseWhere(w.Expr)
	if err != nil {
		return nil, err
	}
	return func(_ *ExecutionContext, in Table) (Table, error) {
		out := make(Table, 0, len(in))
		for _, r := range in {
			if m(r) {
				out = append(out, r)
			}
		}
		return out, nil
	}, nil
}

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokAnd
	tokOr
	tokNot
	tokIn
	tokIs
	tokNull
	tokTrue
	tokFalse
)

var keywords = map[string]tokenType{
	"AND":   tokAnd,
	"OR":    tokOr,
	"NOT":   tokNot,
	"IN":    tokIn,
	"IS":    tokIs,
	"NULL":  tokNull,
	"TRUE":  tokTrue,
	"FALSE": tokFalse,
}

type token struct {
	typ tokenType
	val string
	pos int
}

func (t token) String() string {
	if t.typ == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.val)
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

func (l *lexer) skipSpace() {
	for {
		r, n := l.peekRune()
		if n == 0 || !unicode.IsSpace(r) {
			return
		}
		l.pos += n
	}
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if len(tokens) > MaxExprTokens {
			return nil, fmt.Errorf("too many tokens (max %d)", MaxExprTokens)
		}
		if tok.typ == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	r, n := l.peekRune()
	if n == 0 {
		return token{typ: tokEOF, pos: start}, nil
	}

	switch {
	case r == '(':
		l.pos += n
		return token{typ: tokLParen, val: "(", pos: start}, nil
	case r == ')':
		l.pos += n
		return token{typ: tokRParen, val: ")", pos: start}, nil
	case r == ',':
		l.pos += n
		return token{typ: tokComma, val: ",", pos: start}, nil
	case r == '\'' || r == '"':
		s, err := l.readQuoted(r)
		return token{typ: tokString, val: s, pos: start}, err
	case r == '`':
		s, err := l.readQuoted(r)
		return token{typ: tokIdent, val: s, pos: start}, err
	case strings.ContainsRune("=!<>~", r):
		return l.readOperator(start)
	case unicode.IsDigit(r) || ((r == '-' || r == '.') && l.digitFollows(n)):
		return token{typ: tokNumber, val: l.readWhile(isNumberRune), pos: start}, nil
	case unicode.IsLetter(r) || r == '_':
		word := l.readWhile(isIdentRune)
		if typ, ok := keywords[strings.ToUpper(word)]; ok {
			return token{typ: typ, val: word, pos: start}, nil
		}
		return token{typ: tokIdent, val: word, pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
}

func (l *lexer) digitFollows(skip int) bool {
	if l.pos+skip >= len(l.input) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos+skip:])
	return unicode.IsDigit(r)
}

func isNumberRune(r rune) bool {
	return unicode.IsDigit(r) || strings.ContainsRune(".-+eE", r)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func (l *lexer) readWhile(ok func(rune) bool) string {
	start := l.pos
	for {
		r, n := l.peekRune()
		if n == 0 || !ok(r) {
			break
		}
		l.pos += n
	}
	return l.input[start:l.pos]
}

// readQuoted reads a quoted run. A doubled quote or a backslash escapes
// the quote character.
func (l *lexer) readQuoted(quote rune) (string, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		r, n := l.peekRune()
		if n == 0 {
			return "", fmt.Errorf("unterminated %c at position %d", quote, start)
		}
		l.pos += n
		switch r {
		case '\\':
			esc, m := l.peekRune()
			if m == 0 {
				return "", fmt.Errorf("unterminated %c at position %d", quote, start)
			}
			l.pos += m
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(esc)
			}
		case quote:
			if next, m := l.peekRune(); m > 0 && next == quote {
				l.pos += m
				sb.WriteRune(quote)
				continue
			}
			return sb.String(), nil
		default:
			sb.WriteRune(r)
		}
	}
}

func (l *lexer) readOperator(start int) (token, error) {
	for _, op := range []string{"<=", ">=", "!=", "<>", "=", "<", ">", "~"} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return token{typ: tokOp, val: op, pos: start}, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", l.input[l.pos], start)
}

var comparisonOps = map[string]string{
	"=":  OpEq,
	"!=": OpNeq,
	"<>": OpNeq,
	"<":  OpLt,
	"<=": OpLte,
	">":  OpGt,
	">=": OpGte,
	"~":  OpRegex,
}

type whereParser struct {
	tokens []token
	pos    int
	depth  int
}

// parseWhere compiles a where expression into a matcher. Every failure is
// a *ConfigurationError on the "expr" field.
func parseWhere(expr string) (matcher, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, configError("expr", "where requires an expression")
	}
	if len(expr) > MaxExprLength {
		return nil, configError("expr", "expression too long: %d bytes (max %d)", len(expr), MaxExprLength)
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, configError("expr", "%v", err)
	}
	p := &whereParser{tokens: tokens}
	m, err := p.parseOr()
	if err != nil {
		return nil, wrapExprError(err)
	}
	if tok := p.current(); tok.typ != tokEOF {
		return nil, configError("expr", "unexpected %s at position %d", tok, tok.pos)
	}
	return m, nil
}

func wrapExprError(err error) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	return configError("expr", "%v", err)
}

func (p *whereParser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *whereParser) advance() token {
	tok := p.current()
	p.pos++
	return tok
}

func (p *whereParser) expect(typ tokenType, what string) error {
	if tok := p.current(); tok.typ != typ {
		return fmt.Errorf("expected %s at position %d, got %s", what, tok.pos, tok)
	}
	p.advance()
	return nil
}

// parseOr parses OR chains, the lowest precedence.
func (p *whereParser) parseOr() (matcher, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxExprDepth {
		return nil, fmt.Errorf("expression nesting too deep (max %d)", MaxExprDepth)
	}

	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().typ == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(r *Record) bool { return l(r) || right(r) }
	}
	return left, nil
}

func (p *whereParser) parseAnd() (matcher, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current().typ == tokAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(r *Record) bool { return l(r) && right(r) }
	}
	return left, nil
}

func (p *whereParser) parseNot() (matcher, error) {
	if p.current().typ == tokNot {
		p.advance()
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > MaxExprDepth {
			return nil, fmt.Errorf("expression nesting too deep (max %d)", MaxExprDepth)
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func(r *Record) bool { return !inner(r) }, nil
	}
	return p.parsePrimary()
}

func (p *whereParser) parsePrimary() (matcher, error) {
	if p.current().typ == tokLParen {
		p.advance()
		m, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return m, nil
	}
	return p.parseComparison()
}

// parseComparison parses one field test and compiles it as a Predicate.
func (p *whereParser) parseComparison() (matcher, error) {
	fieldTok := p.current()
	if fieldTok.typ != tokIdent {
		return nil, fmt.Errorf("expected field name at position %d, got %s", fieldTok.pos, fieldTok)
	}
	p.advance()
	pred := Predicate{Field: fieldTok.val}

	switch tok := p.current(); tok.typ {
	case tokOp:
		p.advance()
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		pred.Op, pred.Value = comparisonOps[tok.val], value

	case tokIs:
		p.advance()
		pred.Op = OpEq
		if p.current().typ == tokNot {
			p.advance()
			pred.Op = OpNeq
		}
		if err := p.expect(tokNull, "NULL"); err != nil {
			return nil, err
		}

	case tokNot, tokIn:
		pred.Op = OpIn
		if tok.typ == tokNot {
			p.advance()
			pred.Op = OpNotIn
		}
		if err := p.expect(tokIn, "IN"); err != nil {
			return nil, err
		}
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		pred.Value = list

	default:
		return nil, fmt.Errorf("expected operator after %s at position %d, got %s", fieldTok, tok.pos, tok)
	}

	return compilePredicate(pred)
}

func (p *whereParser) parseList() ([]any, error) {
	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var list []any
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		if p.current().typ != tokComma {
			break
		}
		p.advance()
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *whereParser) parseValue() (any, error) {
	tok := p.advance()
	switch tok.typ {
	case tokString:
		return tok.val, nil
	case tokNumber:
		if i, err := strconv.ParseInt(tok.val, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s at position %d", tok, tok.pos)
		}
		return f, nil
	case tokTrue:
		return true, nil
	case tokFalse:
		return false, nil
	case tokNull:
		return nil, nil
	}
	return nil, fmt.Errorf("expected value at position %d, got %s", tok.pos, tok)
}
