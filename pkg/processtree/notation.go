package processtree

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Textual notation:
//
//	->( 'A', X( 'B', tau ), *( 'C', 'D' ), +( 'E', 'F' ) )
//
// Leaves are quoted activity labels or tau. A leaf may carry an explicit
// frequency name with an @ suffix: 'A'@A_2, tau@skip_1.

var (
	defaultSilentName = regexp.MustCompile(`^tau_[0-9]+$`)
	labelEscaper      = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
)

// Parse parses the textual notation into a validated Tree.
func Parse(src string) (*Tree, error) {
	p := &notationParser{src: src}
	p.skipSpace()
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input %q", p.rest(10))
	}
	return NewTree(root)
}

type notationParser struct {
	src string
	pos int
}

func (p *notationParser) parseNode() (*Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}

	switch {
	case p.src[p.pos] == '\'':
		label, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		n := NewLeaf(label)
		if n.Name, err = p.parseName(); err != nil {
			return nil, err
		}
		return n, nil

	case strings.HasPrefix(p.src[p.pos:], "tau") && !p.identAt(p.pos+3):
		p.pos += 3
		n := NewSilent()
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		n.Name = name
		return n, nil
	}

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	n := NewOperator(op)
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return n, nil
	}
	for {
		child, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return n, nil
		default:
			return nil, p.errorf("expected ',' or ')' but found %q", p.rest(1))
		}
	}
}

func (p *notationParser) parseOperator() (Operator, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "->"):
		p.pos += 2
		return Sequence, nil
	case strings.HasPrefix(rest, "X"):
		p.pos++
		return Xor, nil
	case strings.HasPrefix(rest, "+"):
		p.pos++
		return Parallel, nil
	case strings.HasPrefix(rest, "*"):
		p.pos++
		return Loop, nil
	}
	return None, p.errorf("expected operator, leaf or tau but found %q", p.rest(10))
}

func (p *notationParser) parseQuoted() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.src) {
				sb.WriteByte(p.src[p.pos+1])
				p.pos += 2
				continue
			}
		case '\'':
			p.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		p.pos++
	}
	p.pos = start
	return "", p.errorf("unterminated label")
}

// parseName reads an optional @name or @'quoted name' suffix.
func (p *notationParser) parseName() (string, error) {
	if p.peek() != '@' {
		return "", nil
	}
	p.pos++
	if p.peek() == '\'' {
		return p.parseQuoted()
	}
	start := p.pos
	for p.pos < len(p.src) && p.identAt(p.pos) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("empty name after '@'")
	}
	return p.src[start:p.pos], nil
}

func (p *notationParser) identAt(i int) bool {
	if i >= len(p.src) {
		return false
	}
	return isIdentByte(p.src[i])
}

func isIdentByte(b byte) bool {
	c := rune(b)
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-' || c == '.' || c == ':'
}

// writeName writes an @name suffix, quoting names the bare form cannot hold.
func writeName(sb *strings.Builder, name string) {
	sb.WriteByte('@')
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			sb.WriteByte('\'')
			sb.WriteString(labelEscaper.Replace(name))
			sb.WriteByte('\'')
			return
		}
	}
	sb.WriteString(name)
}

func (p *notationParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q but found %q", c, p.rest(1))
	}
	p.pos++
	return nil
}

func (p *notationParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *notationParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *notationParser) rest(n int) string {
	end := p.pos + n
	if end > len(p.src) {
		end = len(p.src)
	}
	return p.src[p.pos:end]
}

func (p *notationParser) errorf(format string, args ...interface{}) error {
	return serrors.ParseError("tree", p.pos, fmt.Errorf(format, args...))
}

// render writes n in the textual notation. silent counts silent leaves
// seen so far when rendering a whole tree; nil renders a detached subtree.
func render(sb *strings.Builder, n *Node, silent *int) {
	if n.IsLeaf() {
		if n.IsSilent() {
			sb.WriteString("tau")
			def := false
			if silent != nil {
				*silent++
				def = n.Name == fmt.Sprintf("tau_%d", *silent)
			} else {
				def = defaultSilentName.MatchString(n.Name)
			}
			if n.Name != "" && !def {
				writeName(sb, n.Name)
			}
			return
		}
		sb.WriteByte('\'')
		sb.WriteString(labelEscaper.Replace(n.Label))
		sb.WriteByte('\'')
		if n.Name != "" && n.Name != n.Label {
			writeName(sb, n.Name)
		}
		return
	}

	sb.WriteString(n.Operator.Symbol())
	sb.WriteString("( ")
	for i, c := range n.Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		render(sb, c, silent)
	}
	sb.WriteString(" )")
}
