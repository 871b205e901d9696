package ddbmock

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// The expression grammar covers the constructs the helpers in this module
// emit: top-level attribute paths, #name and :value substitution, the six
// comparators, BETWEEN, AND/OR with parentheses, and the functions
// begins_with, contains, attribute_exists and attribute_not_exists.
// Anything else fails with a ValidationException.

type node interface {
	eval(it item) bool
}

type andNode struct{ left, right node }

func (n *andNode) eval(it item) bool { return n.left.eval(it) && n.right.eval(it) }

type orNode struct{ left, right node }

func (n *orNode) eval(it item) bool { return n.left.eval(it) || n.right.eval(it) }

type cmpNode struct {
	path  string
	op    string
	value types.AttributeValue
}

func (n *cmpNode) eval(it item) bool {
	av, ok := it[n.path]
	if !ok {
		return false
	}

	switch n.op {
	case "=":
		return attrEqual(av, n.value)
	case "<>":
		return !attrEqual(av, n.value)
	}

	c, ok := attrCompare(av, n.value)
	if !ok {
		return false
	}

	switch n.op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}

	return false
}

type betweenNode struct {
	path   string
	lo, hi types.AttributeValue
}

func (n *betweenNode) eval(it item) bool {
	av, ok := it[n.path]
	if !ok {
		return false
	}

	lo, okLo := attrCompare(av, n.lo)
	hi, okHi := attrCompare(av, n.hi)

	return okLo && okHi && lo >= 0 && hi <= 0
}

type existsNode struct {
	path   string
	negate bool
}

func (n *existsNode) eval(it item) bool {
	_, ok := it[n.path]

	return ok != n.negate
}

type beginsWithNode struct {
	path   string
	prefix types.AttributeValue
}

func (n *beginsWithNode) eval(it item) bool {
	switch v := it[n.path].(type) {
	case *types.AttributeValueMemberS:
		p, ok := n.prefix.(*types.AttributeValueMemberS)

		return ok && strings.HasPrefix(v.Value, p.Value)
	case *types.AttributeValueMemberB:
		p, ok := n.prefix.(*types.AttributeValueMemberB)

		return ok && bytes.HasPrefix(v.Value, p.Value)
	}

	return false
}

type containsNode struct {
	path   string
	needle types.AttributeValue
}

func (n *containsNode) eval(it item) bool {
	switch v := it[n.path].(type) {
	case *types.AttributeValueMemberS:
		s, ok := n.needle.(*types.AttributeValueMemberS)

		return ok && strings.Contains(v.Value, s.Value)
	case *types.AttributeValueMemberSS:
		s, ok := n.needle.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}

		for _, member := range v.Value {
			if member == s.Value {
				return true
			}
		}
	case *types.AttributeValueMemberNS:
		num, ok := n.needle.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}

		for _, member := range v.Value {
			if numberEqual(member, num.Value) {
				return true
			}
		}
	case *types.AttributeValueMemberBS:
		b, ok := n.needle.(*types.AttributeValueMemberB)
		if !ok {
			return false
		}

		for _, member := range v.Value {
			if bytes.Equal(member, b.Value) {
				return true
			}
		}
	case *types.AttributeValueMemberL:
		for _, member := range v.Value {
			if attrEqual(member, n.needle) {
				return true
			}
		}
	}

	return false
}

func parseCondition(expr string, names map[string]string, values map[string]types.AttributeValue) (node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errValidation("The expression can not be empty")
	}

	toks, err := tokenizeExpression(expr)
	if err != nil {
		return nil, err
	}

	p := &exprParser{toks: toks, names: names, values: values}

	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.pos != len(p.toks) {
		return nil, errValidation(fmt.Sprintf("Syntax error; token: %q", p.toks[p.pos]))
	}

	return n, nil
}

// parseProjection parses a comma-separated list of top-level attribute
// paths and returns the resolved names.
func parseProjection(expr string, names map[string]string) ([]string, error) {
	toks, err := tokenizeExpression(expr)
	if err != nil {
		return nil, err
	}

	p := &exprParser{toks: toks, names: names}

	var paths []string

	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}

		path, err := p.resolvePath(tok)
		if err != nil {
			return nil, err
		}

		paths = append(paths, path)

		if p.pos == len(p.toks) {
			return paths, nil
		}

		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func applyProjection(it item, paths []string) item {
	out := item{}

	for _, path := range paths {
		if v, ok := it[path]; ok {
			out[path] = v
		}
	}

	return out
}

// validateKeyCondition enforces the key-condition shape: exactly one
// equality test on the hash key, optionally combined with one range-key
// restriction.
func validateKeyCondition(n node, t *table) error {
	var hashSeen, rangeSeen bool

	var walk func(node) error

	walk = func(n node) error {
		switch v := n.(type) {
		case *andNode:
			if err := walk(v.left); err != nil {
				return err
			}

			return walk(v.right)
		case *cmpNode:
			if v.path == t.hashKey.name {
				if v.op != "=" {
					return errValidation("Query key condition not supported")
				}

				if hashSeen {
					return errValidation("KeyConditionExpressions must only contain one condition per key")
				}

				hashSeen = true

				return nil
			}

			if v.op == "<>" {
				return errValidation("Query key condition not supported")
			}

			return markRangeCondition(v.path, t, &rangeSeen)
		case *betweenNode:
			return markRangeCondition(v.path, t, &rangeSeen)
		case *beginsWithNode:
			return markRangeCondition(v.path, t, &rangeSeen)
		default:
			return errValidation("Query key condition not supported")
		}
	}

	if err := walk(n); err != nil {
		return err
	}

	if !hashSeen {
		return errValidation("Query condition missed key schema element: " + t.hashKey.name)
	}

	return nil
}

func markRangeCondition(path string, t *table, seen *bool) error {
	if t.rangeKey == nil || path != t.rangeKey.name {
		return errValidation("Query condition missed key schema element: " + t.hashKey.name)
	}

	if *seen {
		return errValidation("KeyConditionExpressions must only contain one condition per key")
	}

	*seen = true

	return nil
}

type exprParser struct {
	toks   []string
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func (p *exprParser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peekKeyword("OR") {
		p.pos++

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &orNode{left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseAnd() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.peekKeyword("AND") {
		p.pos++

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		left = &andNode{left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseTerm() (node, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	if tok == "(" {
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if err := p.expect(")"); err != nil {
			return nil, err
		}

		return n, nil
	}

	if p.peek() == "(" {
		return p.parseFunction(tok)
	}

	path, err := p.resolvePath(tok)
	if err != nil {
		return nil, err
	}

	op, err := p.next()
	if err != nil {
		return nil, err
	}

	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
		val, err := p.nextValue()
		if err != nil {
			return nil, err
		}

		return &cmpNode{path: path, op: op, value: val}, nil
	}

	if strings.EqualFold(op, "BETWEEN") {
		lo, err := p.nextValue()
		if err != nil {
			return nil, err
		}

		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}

		hi, err := p.nextValue()
		if err != nil {
			return nil, err
		}

		return &betweenNode{path: path, lo: lo, hi: hi}, nil
	}

	return nil, errValidation(fmt.Sprintf("Syntax error; token: %q", op))
}

func (p *exprParser) parseFunction(name string) (node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}

	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	path, err := p.resolvePath(tok)
	if err != nil {
		return nil, err
	}

	switch name {
	case "attribute_exists", "attribute_not_exists":
		if err := p.expect(")"); err != nil {
			return nil, err
		}

		return &existsNode{path: path, negate: name == "attribute_not_exists"}, nil
	case "begins_with", "contains":
		if err := p.expect(","); err != nil {
			return nil, err
		}

		val, err := p.nextValue()
		if err != nil {
			return nil, err
		}

		if err := p.expect(")"); err != nil {
			return nil, err
		}

		if name == "begins_with" {
			return &beginsWithNode{path: path, prefix: val}, nil
		}

		return &containsNode{path: path, needle: val}, nil
	}

	return nil, errValidation("Invalid function name; function: " + name)
}

func (p *exprParser) resolvePath(tok string) (string, error) {
	if strings.HasPrefix(tok, ":") {
		return "", errValidation(fmt.Sprintf("Syntax error; token: %q", tok))
	}

	if strings.Contains(tok, ".") {
		return "", errValidation("Nested document paths are not supported")
	}

	if strings.HasPrefix(tok, "#") {
		name, ok := p.names[tok]
		if !ok {
			return "", errValidation("An expression attribute name used in the document path is not defined; attribute name: " + tok)
		}

		return name, nil
	}

	return tok, nil
}

func (p *exprParser) nextValue() (types.AttributeValue, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(tok, ":") {
		return nil, errValidation(fmt.Sprintf("Syntax error; token: %q", tok))
	}

	val, ok := p.values[tok]
	if !ok {
		return nil, errValidation("An expression attribute value used in expression is not defined; attribute value: " + tok)
	}

	return val, nil
}

func (p *exprParser) next() (string, error) {
	if p.pos >= len(p.toks) {
		return "", errValidation("Unexpected end of expression")
	}

	tok := p.toks[p.pos]
	p.pos++

	return tok, nil
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}

	return p.toks[p.pos]
}

func (p *exprParser) peekKeyword(kw string) bool {
	return strings.EqualFold(p.peek(), kw)
}

func (p *exprParser) expect(tok string) error {
	got, err := p.next()
	if err != nil {
		return err
	}

	if got != tok {
		return errValidation(fmt.Sprintf("Syntax error; token: %q", got))
	}

	return nil
}

func (p *exprParser) expectKeyword(kw string) error {
	got, err := p.next()
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, kw) {
		return errValidation(fmt.Sprintf("Syntax error; token: %q", got))
	}

	return nil
}

func tokenizeExpression(expr string) ([]string, error) {
	var toks []string

	rs := []rune(expr)

	for i := 0; i < len(rs); {
		r := rs[i]

		switch {
		case r == ' ' || r == '\t' || r == '\n':
			i++
		case r == '(' || r == ')' || r == ',':
			toks = append(toks, string(r))
			i++
		case r == '=':
			toks = append(toks, "=")
			i++
		case r == '<':
			if i+1 < len(rs) && (rs[i+1] == '=' || rs[i+1] == '>') {
				toks = append(toks, string(rs[i:i+2]))
				i += 2
			} else {
				toks = append(toks, "<")
				i++
			}
		case r == '>':
			if i+1 < len(rs) && rs[i+1] == '=' {
				toks = append(toks, ">=")
				i += 2
			} else {
				toks = append(toks, ">")
				i++
			}
		case isIdentRune(r):
			j := i
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}

			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, errValidation(fmt.Sprintf("Invalid character %q in expression", r))
		}
	}

	return toks, nil
}

func isIdentRune(r rune) bool {
	return r == '#' || r == ':' || r == '_' || r == '.' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// attrCompare orders two attribute values of the same scalar type. Numbers
// compare numerically, strings and binary lexically.
func attrCompare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}

		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}

		ar, aok := new(big.Rat).SetString(av.Value)
		br, bok := new(big.Rat).SetString(bv.Value)

		if !aok || !bok {
			return 0, false
		}

		return ar.Cmp(br), true
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		if !ok {
			return 0, false
		}

		return bytes.Compare(av.Value, bv.Value), true
	}

	return 0, false
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)

		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)

		return ok && numberEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)

		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)

		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)

		return ok
	case *types.AttributeValueMemberSS:
		bv, ok := b.(*types.AttributeValueMemberSS)

		return ok && stringSetEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberNS:
		bv, ok := b.(*types.AttributeValueMemberNS)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}

		return stringSetEqual(normalizeNumbers(av.Value), normalizeNumbers(bv.Value))
	case *types.AttributeValueMemberBS:
		bv, ok := b.(*types.AttributeValueMemberBS)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}

		as := make([]string, len(av.Value))
		bs := make([]string, len(bv.Value))

		for i := range av.Value {
			as[i] = string(av.Value[i])
			bs[i] = string(bv.Value[i])
		}

		return stringSetEqual(as, bs)
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}

		for i := range av.Value {
			if !attrEqual(av.Value[i], bv.Value[i]) {
				return false
			}
		}

		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}

		for k, v := range av.Value {
			other, ok := bv.Value[k]
			if !ok || !attrEqual(v, other) {
				return false
			}
		}

		return true
	}

	return false
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)

	sort.Strings(as)
	sort.Strings(bs)

	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}

	return true
}

func numberEqual(a, b string) bool {
	ar, aok := new(big.Rat).SetString(a)
	br, bok := new(big.Rat).SetString(b)

	if !aok || !bok {
		return a == b
	}

	return ar.Cmp(br) == 0
}

func normalizeNumbers(nums []string) []string {
	out := make([]string, len(nums))

	for i, n := range nums {
		if r, ok := new(big.Rat).SetString(n); ok {
			out[i] = r.RatString()
		} else {
			out[i] = n
		}
	}

	return out
}

func attributeTypeName(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	default:
		return fmt.Sprintf("%T", av)
	}
}
