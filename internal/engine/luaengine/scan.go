// SPDX-License-Identifier: MPL-2.0

package luaengine

import (
	"slices"
	"strings"

	"github.com/invowk/modload/internal/engine"
)

type (
	// call is a global function call whose leading arguments are string literals.
	call struct {
		name string
		args []string
	}

	scanner struct {
		src string
		pos int
	}
)

// scanCalls finds calls of the given global functions whose arguments start with
// string literals, skipping comments and strings. It is a lexer pass, not a parser:
// calls behind method syntax or field access are ignored.
func scanCalls(src string, names ...string) []call {
	s := &scanner{src: src}
	var calls []call
	prevDot := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '-' && s.peek(1) == '-':
			s.skipComment()
		case c == '"' || c == '\'':
			s.readString()
			prevDot = false
		case c == '[' && (s.peek(1) == '[' || s.peek(1) == '='):
			if !s.skipLongBracket() {
				s.pos++
			}
			prevDot = false
		case isIdentStart(c):
			ident := s.readIdent()
			if !prevDot && slices.Contains(names, ident) {
				if args, ok := s.readStringArgs(); ok {
					calls = append(calls, call{name: ident, args: args})
				}
			}
			prevDot = false
		case c == '.' || c == ':':
			prevDot = true
			s.pos++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.pos++
		default:
			prevDot = false
			s.pos++
		}
	}
	return calls
}

// requests returns the static imports declared with import("spec", "name").
func requests(src string) []engine.Request {
	var reqs []engine.Request
	index := make(map[string]int)
	for _, c := range scanCalls(src, "import") {
		if len(c.args) == 0 {
			continue
		}
		spec := c.args[0]
		i, ok := index[spec]
		if !ok {
			i = len(reqs)
			index[spec] = i
			reqs = append(reqs, engine.Request{Specifier: spec})
		}
		if len(c.args) > 1 && !slices.Contains(reqs[i].Names, c.args[1]) {
			reqs[i].Names = append(reqs[i].Names, c.args[1])
		}
	}
	return reqs
}

// exportNames returns the names passed to export and hoist.
func exportNames(src string) []string {
	names := []string{}
	for _, c := range scanCalls(src, "export", "hoist") {
		if len(c.args) > 0 && !slices.Contains(names, c.args[0]) {
			names = append(names, c.args[0])
		}
	}
	return names
}

// hasSuspension reports whether the source calls a suspending function.
func hasSuspension(src string) bool {
	return containsCall(src, "await_tick") || containsCall(src, "dynamic_import")
}

// containsCall reports whether src calls the global function name with any arguments.
func containsCall(src, name string) bool {
	s := &scanner{src: src}
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '-' && s.peek(1) == '-':
			s.skipComment()
		case c == '"' || c == '\'':
			s.readString()
		case c == '[' && (s.peek(1) == '[' || s.peek(1) == '='):
			if !s.skipLongBracket() {
				s.pos++
			}
		case isIdentStart(c):
			if s.readIdent() == name {
				s.skipSpace()
				if s.peek(0) == '(' {
					return true
				}
			}
		default:
			s.pos++
		}
	}
	return false
}

func (s *scanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && strings.IndexByte(" \t\r\n", s.src[s.pos]) >= 0 {
		s.pos++
	}
}

func (s *scanner) skipComment() {
	s.pos += 2
	if s.peek(0) == '[' && s.skipLongBracket() {
		return
	}
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

// skipLongBracket skips [[...]] or [==[...]==] starting at pos.
func (s *scanner) skipLongBracket() bool {
	start := s.pos
	s.pos++
	level := 0
	for s.peek(0) == '=' {
		level++
		s.pos++
	}
	if s.peek(0) != '[' {
		s.pos = start
		return false
	}
	closing := "]" + strings.Repeat("=", level) + "]"
	end := strings.Index(s.src[s.pos:], closing)
	if end < 0 {
		s.pos = len(s.src)
		return true
	}
	s.pos += end + len(closing)
	return true
}

// readString reads a quoted literal and returns its value with simple escapes applied.
func (s *scanner) readString() string {
	quote := s.src[s.pos]
	s.pos++
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case quote:
			s.pos++
			return b.String()
		case '\\':
			s.pos++
			if s.pos < len(s.src) {
				switch e := s.src[s.pos]; e {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(e)
				}
				s.pos++
			}
		case '\n':
			return b.String()
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return b.String()
}

func (s *scanner) readIdent() string {
	start := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// readStringArgs reads "(" followed by comma-separated string literals. Arguments
// after the first non-literal are ignored.
func (s *scanner) readStringArgs() ([]string, bool) {
	s.skipSpace()
	if s.peek(0) != '(' {
		return nil, false
	}
	s.pos++
	var args []string
	for {
		s.skipSpace()
		c := s.peek(0)
		if c != '"' && c != '\'' {
			return args, len(args) > 0
		}
		args = append(args, s.readString())
		s.skipSpace()
		if s.peek(0) != ',' {
			return args, true
		}
		s.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
