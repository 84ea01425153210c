package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Parser errors
var (
	ErrEmptyLine         = errors.New("empty line")
	ErrInvalidUTF8       = errors.New("line contains invalid UTF-8")
	ErrUnterminatedQuote = errors.New("unterminated quoted value")
	ErrMissingAction     = errors.New("missing action")
)

// Reply is a tokenized reply line from the router.
// Per SAMv3.md, replies follow the format:
//
//	VERB ACTION [KEY=VALUE]...
type Reply struct {
	Verb    string
	Action  string
	Options map[string]string
	Raw     string
}

// Get returns the value of an option, or "" if absent.
func (r *Reply) Get(key string) string {
	return r.Options[key]
}

// Has reports whether the option was present, even with an empty value.
func (r *Reply) Has(key string) bool {
	_, ok := r.Options[key]
	return ok
}

// Parser tokenizes SAM reply lines.
// It handles UTF-8 encoding (SAM 3.2+), quoted values with escapes,
// and empty option values.
type Parser struct {
	// CaseInsensitive enables case-insensitive verb/action matching.
	CaseInsensitive bool
}

// NewParser creates a new parser with default settings.
// Verbs and actions are matched case-insensitively.
func NewParser() *Parser {
	return &Parser{
		CaseInsensitive: true,
	}
}

// Parse splits a reply line into verb, action and options.
// The input should be a single line; a trailing newline is tolerated.
func (p *Parser) Parse(line string) (*Reply, error) {
	line = strings.TrimRight(line, "\r\n")

	if !utf8.ValidString(line) {
		return nil, ErrInvalidUTF8
	}

	tokens, err := splitTokens(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyLine
	}
	if len(tokens) < 2 || strings.Contains(tokens[1], "=") {
		return nil, ErrMissingAction
	}

	reply := &Reply{
		Verb:    p.normalizeToken(tokens[0]),
		Action:  p.normalizeToken(tokens[1]),
		Options: make(map[string]string, len(tokens)-2),
		Raw:     line,
	}
	for _, tok := range tokens[2:] {
		key, value := parseKeyValue(tok)
		if key != "" {
			reply.Options[key] = value
		}
	}
	return reply, nil
}

func (p *Parser) normalizeToken(token string) string {
	if p.CaseInsensitive {
		return strings.ToUpper(token)
	}
	return token
}

// splitTokens splits line on unquoted spaces and tabs. Double quotes group
// a value and are dropped; inside quotes, \" and \\ unescape and any other
// backslash is kept literally.
func splitTokens(line string) ([]string, error) {
	var (
		tokens []string
		tok    strings.Builder
		quoted bool
		open   bool
	)
	flush := func() {
		if open {
			tokens = append(tokens, tok.String())
			tok.Reset()
			open = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == '\\' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\'):
			i++
			tok.WriteByte(line[i])
		case c == '"':
			quoted = !quoted
			open = true
			continue
		case !quoted && (c == ' ' || c == '\t'):
			flush()
			continue
		default:
			tok.WriteByte(c)
		}
		open = true
	}
	if quoted {
		return nil, ErrUnterminatedQuote
	}
	flush()
	return tokens, nil
}

// parseKeyValue splits a token on its first '='. A bare KEY has an empty
// value, as do KEY= and KEY="".
func parseKeyValue(token string) (key, value string) {
	key, value, _ = strings.Cut(token, "=")
	return key, value
}

// ParseLine is a convenience function that parses a line using default settings.
func ParseLine(line string) (*Reply, error) {
	return NewParser().Parse(line)
}

// MustParse parses a line and panics on error. For testing only.
func MustParse(line string) *Reply {
	r, err := ParseLine(line)
	if err != nil {
		panic(fmt.Sprintf("failed to parse reply: %v", err))
	}
	return r
}
