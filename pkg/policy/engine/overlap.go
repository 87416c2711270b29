package engine

import (
	"errors"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

// The overlap check works on the glob syntax accepted by gobwas/glob without
// separators: '*' (and '**'), '?', character classes ([abc], [a-z], [!...]),
// alternatives ({a,b}) and '\' escapes. Alternatives are expanded up front.

const maxExpansions = 256

var errTooComplex = errors.New("pattern has too many alternatives")

type charRange struct {
	lo, hi rune
}

// charSet is a set of runes given by ranges, or their complement.
type charSet struct {
	negated bool
	ranges  []charRange
}

func (s charSet) contains(r rune) bool {
	in := false
	for _, cr := range s.ranges {
		if r >= cr.lo && r <= cr.hi {
			in = true
			break
		}
	}
	return in != s.negated
}

var anyChar = charSet{negated: true}

type token struct {
	star bool
	set  charSet
}

func literal(r rune) token {
	return token{set: charSet{ranges: []charRange{{r, r}}}}
}

type globParser struct {
	in  []rune
	pos int
}

// expandGlob parses pattern into its brace-free alternatives.
func expandGlob(pattern string) ([][]token, error) {
	p := &globParser{in: []rune(pattern)}
	return p.sequence(false)
}

func (p *globParser) sequence(nested bool) ([][]token, error) {
	out := [][]token{{}}
	for p.pos < len(p.in) {
		r := p.in[p.pos]
		switch {
		case nested && (r == ',' || r == '}'):
			return out, nil

		case r == '*':
			for p.pos < len(p.in) && p.in[p.pos] == '*' {
				p.pos++
			}
			out = appendToken(out, token{star: true})

		case r == '?':
			p.pos++
			out = appendToken(out, token{set: anyChar})

		case r == '[':
			set, err := p.class()
			if err != nil {
				return nil, err
			}
			out = appendToken(out, token{set: set})

		case r == '{':
			p.pos++
			var alts [][]token
			for {
				sub, err := p.sequence(true)
				if err != nil {
					return nil, err
				}
				alts = append(alts, sub...)
				if p.pos >= len(p.in) {
					return nil, errors.New("unclosed '{'")
				}
				closing := p.in[p.pos] == '}'
				p.pos++
				if closing {
					break
				}
			}
			if len(out)*len(alts) > maxExpansions {
				return nil, errTooComplex
			}
			out = cross(out, alts)

		case r == '\\':
			p.pos++
			if p.pos >= len(p.in) {
				return nil, errors.New("trailing escape")
			}
			out = appendToken(out, literal(p.in[p.pos]))
			p.pos++

		default:
			p.pos++
			out = appendToken(out, literal(r))
		}
	}
	if nested {
		return nil, errors.New("unclosed '{'")
	}
	return out, nil
}

func (p *globParser) class() (charSet, error) {
	p.pos++ // '['
	var set charSet
	if p.pos < len(p.in) && p.in[p.pos] == '!' {
		set.negated = true
		p.pos++
	}
	for p.pos < len(p.in) {
		r := p.in[p.pos]
		if r == ']' {
			p.pos++
			return set, nil
		}
		if r == '\\' && p.pos+1 < len(p.in) {
			p.pos++
			r = p.in[p.pos]
		}
		p.pos++
		if p.pos+1 < len(p.in) && p.in[p.pos] == '-' && p.in[p.pos+1] != ']' {
			hi := p.in[p.pos+1]
			p.pos += 2
			set.ranges = append(set.ranges, charRange{r, hi})
			continue
		}
		set.ranges = append(set.ranges, charRange{r, r})
	}
	return set, errors.New("unclosed '['")
}

func appendToken(seqs [][]token, t token) [][]token {
	for i, s := range seqs {
		seqs[i] = append(s[:len(s):len(s)], t)
	}
	return seqs
}

func cross(prefixes, suffixes [][]token) [][]token {
	out := make([][]token, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			seq := make([]token, 0, len(p)+len(s))
			seq = append(seq, p...)
			seq = append(seq, s...)
			out = append(out, seq)
		}
	}
	return out
}

// commonRune returns a rune contained in every set.
func commonRune(sets ...charSet) (rune, bool) {
	candidates := []rune{'a', 'x', '_', '0', '-', ':', '.'}
	for _, s := range sets {
		for _, cr := range s.ranges {
			candidates = append(candidates, cr.lo, cr.hi, cr.lo-1, cr.hi+1)
		}
	}
	candidates = append(candidates, ' ', 0, utf8.MaxRune)

	for _, c := range candidates {
		if c < 0 || c > utf8.MaxRune {
			continue
		}
		ok := true
		for _, s := range sets {
			if !s.contains(c) {
				ok = false
				break
			}
		}
		if ok {
			return c, true
		}
	}
	return 0, false
}

type pos struct{ i, j int }

type step struct {
	from pos
	r    rune // -1 for an empty move
}

// intersect searches for a string matched by both token sequences and
// returns one if it exists.
func intersect(a, b []token) (string, bool) {
	start := pos{0, 0}
	goal := pos{len(a), len(b)}
	prev := map[pos]step{start: {from: start, r: -1}}
	queue := []pos{start}

	visit := func(from, to pos, r rune) {
		if _, seen := prev[to]; seen {
			return
		}
		prev[to] = step{from: from, r: r}
		queue = append(queue, to)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			break
		}

		aStar := cur.i < len(a) && a[cur.i].star
		bStar := cur.j < len(b) && b[cur.j].star
		if aStar {
			visit(cur, pos{cur.i + 1, cur.j}, -1)
		}
		if bStar {
			visit(cur, pos{cur.i, cur.j + 1}, -1)
		}

		if cur.i >= len(a) || cur.j >= len(b) || (aStar && bStar) {
			continue
		}

		next := cur
		sets := make([]charSet, 0, 2)
		if aStar {
			sets = append(sets, anyChar)
		} else {
			sets = append(sets, a[cur.i].set)
			next.i++
		}
		if bStar {
			sets = append(sets, anyChar)
		} else {
			sets = append(sets, b[cur.j].set)
			next.j++
		}
		if r, ok := commonRune(sets...); ok {
			visit(cur, next, r)
		}
	}

	if _, ok := prev[goal]; !ok {
		return "", false
	}

	var runes []rune
	for p := goal; p != start; {
		s := prev[p]
		if s.r >= 0 {
			runes = append(runes, s.r)
		}
		p = s.from
	}
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), true
}

// PatternOverlap reports whether some string matches both globs, and returns
// one such string. Patterns too complex to analyze are reported as
// overlapping with an empty example.
//
// The result follows the compiled matcher rather than glob semantics where
// the two differ: gobwas/glob matches "b*b" against "b" because its
// prefix-suffix matcher lets the prefix and suffix share characters. Such
// strings are tried against both compiled globs after the exact search.
func PatternOverlap(p, q string) (string, bool) {
	ps, err := expandGlob(p)
	if err != nil {
		return "", true
	}
	qs, err := expandGlob(q)
	if err != nil {
		return "", true
	}
	for _, a := range ps {
		for _, b := range qs {
			if w, ok := intersect(a, b); ok {
				return w, true
			}
		}
	}
	return matcherOverlap(p, q, ps, qs)
}

// matcherOverlap tries the strings the compiled matcher accepts beyond glob
// semantics: a leading literal run and a trailing literal run around a star,
// folded onto each other.
func matcherOverlap(p, q string, ps, qs [][]token) (string, bool) {
	gp, err := glob.Compile(p)
	if err != nil {
		return "", true
	}
	gq, err := glob.Compile(q)
	if err != nil {
		return "", true
	}
	for _, seqs := range [][][]token{ps, qs} {
		for _, seq := range seqs {
			for _, c := range foldedLiterals(seq) {
				if gp.Match(c) && gq.Match(c) {
					return c, true
				}
			}
		}
	}
	return "", false
}

// foldedLiterals returns, for a sequence of the form L ... T with a star
// between literal runs L and T, every string L+T[k:] where the last k runes
// of L equal the first k runes of T.
func foldedLiterals(seq []token) []string {
	hasStar := false
	for _, t := range seq {
		if t.star {
			hasStar = true
			break
		}
	}
	if !hasStar {
		return nil
	}

	var lead, trail []rune
	for _, t := range seq {
		r, ok := literalRune(t)
		if !ok {
			break
		}
		lead = append(lead, r)
	}
	for i := len(seq) - 1; i >= 0; i-- {
		r, ok := literalRune(seq[i])
		if !ok {
			break
		}
		trail = append([]rune{r}, trail...)
	}

	var out []string
	for k := 1; k <= len(lead) && k <= len(trail); k++ {
		if string(lead[len(lead)-k:]) == string(trail[:k]) {
			out = append(out, string(lead)+string(trail[k:]))
		}
	}
	return out
}

func literalRune(t token) (rune, bool) {
	if t.star || t.set.negated || len(t.set.ranges) != 1 {
		return 0, false
	}
	if r := t.set.ranges[0]; r.lo == r.hi {
		return r.lo, true
	}
	return 0, false
}

// Example returns a string the glob matches.
func Example(pattern string) (string, bool) {
	return PatternOverlap(pattern, pattern)
}

// Specificity scores how narrow a pattern is.
type Specificity struct {
	// Wildcards counts '*' runs, '?', character classes and alternative groups.
	Wildcards int

	// Literals counts literal characters.
	Literals int
}

// PatternSpecificity scores a single glob.
func PatternSpecificity(pattern string) Specificity {
	var s Specificity
	in := []rune(pattern)
	for i := 0; i < len(in); i++ {
		switch in[i] {
		case '*':
			s.Wildcards++
			for i+1 < len(in) && in[i+1] == '*' {
				i++
			}
		case '?':
			s.Wildcards++
		case '[':
			s.Wildcards++
			for i < len(in) && in[i] != ']' {
				if in[i] == '\\' {
					i++
				}
				i++
			}
		case '{':
			s.Wildcards++
		case '}', ',':
		case '\\':
			i++
			s.Literals++
		default:
			s.Literals++
		}
	}
	return s
}

// RuleSpecificity scores a rule across both patterns. A missing argument
// pattern counts as '*'.
func RuleSpecificity(r Rule) Specificity {
	s := PatternSpecificity(r.ToolPattern)
	arg := r.ArgPattern
	if arg == "" {
		arg = "*"
	}
	as := PatternSpecificity(arg)
	s.Wildcards += as.Wildcards
	s.Literals += as.Literals
	return s
}

// MoreSpecificThan reports whether s is strictly narrower than o: fewer
// wildcards, or as many wildcards and more literal characters.
func (s Specificity) MoreSpecificThan(o Specificity) bool {
	if s.Wildcards != o.Wildcards {
		return s.Wildcards < o.Wildcards
	}
	return s.Literals > o.Literals
}

func exampleArgs(r1, r2 Rule) []string {
	var args []string
	for _, r := range []Rule{r1, r2} {
		if !r.HasArgPattern() {
			continue
		}
		if w, ok := Example(r.ArgPattern); ok && (len(args) == 0 || args[0] != w) {
			args = append(args, w)
		}
	}
	return args
}
