package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Command is one console command: a name followed by its arguments.
type Command struct {
	Name string
	Args []string
	Raw  string // Source text of this command, untouched
	Line int    // 1-based line number in the payload
}

// Tokens returns the name followed by the arguments.
func (c Command) Tokens() []string {
	return append([]string{c.Name}, c.Args...)
}

func (c Command) String() string {
	return c.Raw
}

// Message is the ordered list of commands carried by one payload.
type Message []Command

// First returns the first command, if any.
func (m Message) First() (Command, bool) {
	if len(m) == 0 {
		return Command{}, false
	}
	return m[0], true
}

// SyntaxError reports a line that could not be tokenized.
type SyntaxError struct {
	Line   int
	Input  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Input)
}

// ErrUnterminatedQuote is the reason used for lines with an odd number of quotes.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Parse splits a payload into commands. Lines are separated by newlines and
// commands within a line by unquoted ';'. Tokens are separated by unquoted
// blanks; a double-quoted run is a single token with the quotes removed.
//
// Lines that fail to tokenize are left out of the returned message and
// reported through the joined error, so callers can decide whether the valid
// remainder is usable.
func Parse(input string) (Message, error) {
	var msg Message
	var errs []error

	for i, line := range strings.Split(input, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		for _, part := range splitByUnquotedChar(line, ';') {
			raw := strings.TrimSpace(part)
			if raw == "" {
				continue
			}

			tokens, err := tokenize(raw)
			if err != nil {
				errs = append(errs, &SyntaxError{Line: i + 1, Input: raw, Reason: err.Error()})
				continue
			}
			if len(tokens) == 0 {
				continue
			}

			msg = append(msg, Command{
				Name: tokens[0],
				Args: tokens[1:],
				Raw:  raw,
				Line: i + 1,
			})
		}
	}

	return msg, errors.Join(errs...)
}

// tokenize splits s on blanks outside double quotes.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuote := false
	hasToken := false

	for _, c := range s {
		switch {
		case c == '"':
			inQuote = !inQuote
			hasToken = true
		case !inQuote && (c == ' ' || c == '\t'):
			if hasToken {
				tokens = append(tokens, current.String())
				current.Reset()
				hasToken = false
			}
		default:
			current.WriteRune(c)
			hasToken = true
		}
	}

	if inQuote {
		return tokens, ErrUnterminatedQuote
	}
	if hasToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// splitByUnquotedChar splits s by char, ignoring occurrences inside double quotes.
func splitByUnquotedChar(s string, char rune) []string {
	var result []string
	var current strings.Builder
	inQuote := false

	for _, c := range s {
		if c == '"' {
			inQuote = !inQuote
		}
		if !inQuote && c == char {
			result = append(result, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(c)
	}

	if current.Len() > 0 || len(result) > 0 {
		result = append(result, current.String())
	}

	return result
}
