package template

import (
	"regexp"
	"strings"
)

var (
	forHead  = regexp.MustCompile(`^for\s+([A-Za-z_]\w*(?:\s*,\s*[A-Za-z_]\w*)*)\s+in\s+(.+?)\s*:?$`)
	docsHead = regexp.MustCompile(`^docs\s+([A-Za-z_][\w.]*)$`)
	comma    = regexp.MustCompile(`\s*,\s*`)
)

// directive is a classified {* ... *} tag.
type directive struct {
	word string // for, if, elif, else, endfor, endif, docs, enddocs
	arg  string
	vars []string
	pos  Position
}

// closers are directives that end or continue an enclosing block.
var closers = map[string]bool{"endfor": true, "elif": true, "else": true, "endif": true, "enddocs": true}

// ParseString parses template text. file is used in positions only.
func ParseString(text, file string) (*Template, error) {
	toks, err := scan(file, text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	nodes, stop, err := p.block()
	if err != nil {
		return nil, err
	}
	if stop != nil {
		return nil, stray(stop)
	}
	return &Template{File: file, Nodes: nodes}, nil
}

type parser struct {
	toks []token
	i    int
}

// block parses nodes until the input ends or a closer directive appears.
// The closer is handed back for the enclosing construct to judge.
func (p *parser) block() ([]Node, *directive, error) {
	var nodes []Node
	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		p.i++

		switch tok.kind {
		case tokText:
			nodes = append(nodes, &Text{At: tok.pos, Text: tok.text})
		case tokExpr:
			if tok.text == "" {
				return nil, nil, errorf(tok.pos, "empty expression")
			}
			nodes = append(nodes, &Expr{At: tok.pos, Source: tok.text})
		case tokDirective:
			d, err := classify(tok)
			if err != nil {
				return nil, nil, err
			}
			if closers[d.word] {
				return nodes, d, nil
			}
			var n Node
			switch d.word {
			case "for":
				n, err = p.forBlock(d)
			case "if":
				n, err = p.ifBlock(d)
			case "docs":
				n, err = p.docsBlock(d)
			}
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil, nil
}

func (p *parser) forBlock(d *directive) (*For, error) {
	body, stop, err := p.block()
	if err != nil {
		return nil, err
	}
	if stop == nil {
		return nil, errorf(d.pos, "unclosed 'for' block (missing 'endfor')")
	}
	if stop.word != "endfor" {
		return nil, stray(stop)
	}
	return &For{At: d.pos, Vars: d.vars, Iter: d.arg, Body: body}, nil
}

func (p *parser) ifBlock(d *directive) (*If, error) {
	node := &If{At: d.pos}
	arm := Cond{At: d.pos, Test: d.arg}
	inElse := false

	for {
		body, stop, err := p.block()
		if err != nil {
			return nil, err
		}
		if inElse {
			node.Else = append([]Node{}, body...)
		} else {
			arm.Body = body
			node.Arms = append(node.Arms, arm)
		}
		if stop == nil {
			return nil, errorf(d.pos, "unclosed 'if' block (missing 'endif')")
		}

		switch stop.word {
		case "endif":
			return node, nil
		case "elif":
			if inElse {
				return nil, errorf(stop.pos, "'elif' after 'else'")
			}
			arm = Cond{At: stop.pos, Test: stop.arg}
		case "else":
			if inElse {
				return nil, errorf(stop.pos, "duplicate 'else'")
			}
			inElse = true
		default:
			return nil, stray(stop)
		}
	}
}

// docsBlock keeps the block body as source text; tags inside are not
// interpreted.
func (p *parser) docsBlock(d *directive) (*Docs, error) {
	var sb strings.Builder
	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		p.i++
		switch tok.kind {
		case tokText:
			sb.WriteString(tok.text)
		case tokExpr:
			sb.WriteString("{{ " + tok.text + " }}")
		case tokDirective:
			if tok.text == "enddocs" {
				return &Docs{At: d.pos, Name: d.arg, Text: sb.String()}, nil
			}
			sb.WriteString("{* " + tok.text + " *}")
		}
	}
	return nil, errorf(d.pos, "unclosed 'docs' block (missing 'enddocs')")
}

// classify reads the keyword and argument of a directive tag.
func classify(tok token) (*directive, error) {
	text := tok.text
	word, rest, _ := strings.Cut(text, " ")
	word = strings.TrimSuffix(word, ":")
	rest = strings.TrimSpace(rest)
	d := &directive{word: word, pos: tok.pos}

	switch word {
	case "for":
		m := forHead.FindStringSubmatch(text)
		if m == nil {
			return nil, errorf(tok.pos, "invalid for statement: %q", text)
		}
		d.vars = comma.Split(m[1], -1)
		d.arg = m[2]
	case "if", "elif":
		d.arg = strings.TrimSpace(strings.TrimSuffix(rest, ":"))
		if d.arg == "" {
			return nil, errorf(tok.pos, "%s statement needs a condition", word)
		}
	case "else", "endfor", "endif", "enddocs":
		if rest != "" {
			return nil, errorf(tok.pos, "unexpected text after %s: %q", word, rest)
		}
	case "docs":
		m := docsHead.FindStringSubmatch(text)
		if m == nil {
			return nil, errorf(tok.pos, "invalid docs statement: %q", text)
		}
		d.arg = m[1]
	default:
		return nil, errorf(tok.pos, "unknown statement: %q", text)
	}
	return d, nil
}

// stray reports a closer that has no block to close.
func stray(d *directive) error {
	opener := map[string]string{"endfor": "for", "endif": "if", "elif": "if", "else": "if", "enddocs": "docs"}[d.word]
	return errorf(d.pos, "'%s' without matching '%s'", d.word, opener)
}
