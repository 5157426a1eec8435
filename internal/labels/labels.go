// Package labels extracts code lookups from the I94 label-description file.
//
// The file is a SAS program whose value formats list one `code = 'label'`
// pair per line. Each lookup lives in a fixed, contiguous block of lines, so
// extraction is driven by Rules naming those blocks rather than by parsing
// the SAS syntax. The line numbers are positional: if the file gains or
// loses lines the rules must be updated.
package labels

import (
	"errors"
	"fmt"
	"strings"

	"i94_etl/internal/table"
)

var (
	// ErrMalformedLine is returned for a non-blank line without '='.
	ErrMalformedLine = errors.New("malformed label line")
	// ErrInvalidRule is returned for a rule with a negative or inverted range.
	ErrInvalidRule = errors.New("invalid label rule")
)

// Rule selects lines[Start:End] of the file (0-based, End exclusive) as the
// pairs of one lookup table.
type Rule struct {
	// Name is the destination table name, e.g. "country_code".
	Name string
	// LabelColumn names the second output column, e.g. "country".
	LabelColumn string
	Start       int
	End         int
}

func (r Rule) validate() error {
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("%w: %s [%d:%d]", ErrInvalidRule, r.Name, r.Start, r.End)
	}
	return nil
}

// DefaultRules returns the ranges of the published I94_SAS_Labels_Descriptions.SAS file.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "country_code", LabelColumn: "country", Start: 10, End: 245},
		{Name: "city_code", LabelColumn: "city", Start: 302, End: 962},
		{Name: "state_code", LabelColumn: "state", Start: 981, End: 1036},
	}
}

// Lookup is an insertion-ordered code to label mapping.
type Lookup struct {
	Rule   Rule
	codes  []string
	labels map[string]string
}

func newLookup(r Rule) *Lookup {
	return &Lookup{Rule: r, labels: make(map[string]string)}
}

// Set records a label. A code seen before keeps its position and takes the new label.
func (l *Lookup) Set(code, label string) {
	if _, ok := l.labels[code]; !ok {
		l.codes = append(l.codes, code)
	}
	l.labels[code] = label
}

// Get returns the label of a code.
func (l *Lookup) Get(code string) (string, bool) {
	label, ok := l.labels[code]
	return label, ok
}

// Len returns the number of distinct codes.
func (l *Lookup) Len() int { return len(l.codes) }

// Table converts the lookup into a (code, <label column>) table.
func (l *Lookup) Table() *table.Table {
	rows := make([][]any, len(l.codes))
	for i, code := range l.codes {
		rows[i] = []any{code, l.labels[code]}
	}
	return table.MustNew([]table.Column{
		{Name: "code", Type: table.String},
		{Name: l.Rule.LabelColumn, Type: table.String},
	}, rows)
}

// Extract applies every rule to lines and returns one lookup per rule, in rule order.
func Extract(lines []string, rules []Rule) ([]*Lookup, error) {
	out := make([]*Lookup, 0, len(rules))
	for _, r := range rules {
		l, err := extract(lines, r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func extract(lines []string, r Rule) (*Lookup, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	l := newLookup(r)
	start, end := min(r.Start, len(lines)), min(r.End, len(lines))
	for i := start; i < end; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		code, label, ok := ParseLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: %s line %d: %q", ErrMalformedLine, r.Name, i+1, line)
		}
		l.Set(code, label)
	}
	return l, nil
}

// ParseLine splits a `code = 'label'` line on its first '=' and strips
// whitespace and quotes around both halves.
func ParseLine(line string) (code, label string, ok bool) {
	left, right, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	return clean(left), clean(right), true
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `'"`)
	return strings.TrimSpace(s)
}
