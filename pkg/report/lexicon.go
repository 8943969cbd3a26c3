package report

import (
	"fmt"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
)

// Lexicon maps top-level project display names to support-type labels. An
// entry whose top-level project is not in the mapping gets the lexicon's
// default label. The support type selects which output sheet an expert's
// hours land on.
type Lexicon struct {
	name    string
	mapping map[string]string
	dflt    string
}

// DefaultLexicon is the lexicon used when none is named on the command line.
const DefaultLexicon = "bengts_report"

// builtinLexicons holds the defined classification lexicons.
var builtinLexicons = map[string]Lexicon{
	"bengts_report": {
		name: "bengts_report",
		mapping: map[string]string{
			"Long-term Support": "Long-term",
		},
		dflt: "SMS",
	},
}

// LexiconByName returns the named lexicon. An unknown name is a
// configuration error, fatal at startup: it returns ErrUnknownLexicon.
func LexiconByName(name string) (*Lexicon, error) {
	lex, ok := builtinLexicons[name]
	if !ok {
		return nil, fmt.Errorf("lexicon %q: %w", name, trerrors.ErrUnknownLexicon)
	}
	return &lex, nil
}

// Name returns the lexicon's identifier.
func (l *Lexicon) Name() string {
	return l.name
}

// Classify returns the support type for a top-level project name. Project
// names are matched byte-for-byte; anything unmatched gets the default.
func (l *Lexicon) Classify(topLevelProjectName string) string {
	if label, ok := l.mapping[topLevelProjectName]; ok {
		return label
	}
	return l.dflt
}
