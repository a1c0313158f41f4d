// Package yara writes YARA rules that match tracking strings.
package yara

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/stephen-fox/bredcrumb/conv"
)

const (
	// DefaultAuthor is written to a rule's meta section when
	// Options.Author is empty.
	DefaultAuthor = "redteamstrings"

	defaultRuleNamePrefix = "tracking_string_"
	defaultRuleNameBytes  = 8
)

// Options controls the text string of a rule.
type Options struct {
	// The modifiers are written in the order they are declared.
	ASCII    bool
	Wide     bool
	NoCase   bool
	FullWord bool

	// Author is the meta author value. DefaultAuthor is used
	// if empty.
	Author string

	// OptDate is the meta date value. The current UTC date is used
	// if it is the zero time.
	OptDate time.Time
}

func (o Options) modifiers() []string {
	var mods []string

	for _, mod := range []struct {
		enabled bool
		name    string
	}{
		{enabled: o.ASCII, name: "ascii"},
		{enabled: o.Wide, name: "wide"},
		{enabled: o.NoCase, name: "nocase"},
		{enabled: o.FullWord, name: "fullword"},
	} {
		if mod.enabled {
			mods = append(mods, mod.name)
		}
	}

	return mods
}

func (o Options) author() string {
	if o.Author == "" {
		return DefaultAuthor
	}

	return o.Author
}

func (o Options) date() string {
	date := o.OptDate
	if date.IsZero() {
		date = time.Now().UTC()
	}

	return date.Format(time.DateOnly)
}

// Generate returns a rule that matches tracking either as text, using
// the modifiers in options, or as raw bytes. If ruleName is empty, a
// name is derived from the first bytes of tracking.
func Generate(tracking string, ruleName string, options Options) string {
	var rule strings.Builder

	modifiers := ""
	if mods := options.modifiers(); len(mods) > 0 {
		modifiers = " " + strings.Join(mods, " ")
	}

	fmt.Fprintf(&rule, "rule %s {\n", RuleName(tracking, ruleName))
	rule.WriteString("    meta:\n")
	fmt.Fprintf(&rule, "        description = \"Detects tracking string: %s\"\n", conv.YaraEscapes.Escape(tracking))
	fmt.Fprintf(&rule, "        author = \"%s\"\n", conv.YaraEscapes.Escape(options.author()))
	fmt.Fprintf(&rule, "        date = \"%s\"\n", options.date())
	rule.WriteString("\n")
	rule.WriteString("    strings:\n")
	fmt.Fprintf(&rule, "        $tracking_string = \"%s\"%s\n", conv.YaraEscapes.Escape(tracking), modifiers)
	fmt.Fprintf(&rule, "        $tracking_hex = { %s }\n", conv.ToHexPattern([]byte(tracking)))
	rule.WriteString("\n")
	rule.WriteString("    condition:\n")
	rule.WriteString("        any of them\n")
	rule.WriteString("}")

	return rule.String()
}

// GenerateHexOnly returns a rule that matches the raw bytes of
// tracking and nothing else.
func GenerateHexOnly(tracking string, ruleName string, options Options) string {
	var rule strings.Builder

	fmt.Fprintf(&rule, "rule %s {\n", RuleName(tracking, ruleName))
	rule.WriteString("    meta:\n")
	fmt.Fprintf(&rule, "        description = \"Detects tracking string (hex): %s\"\n", conv.YaraEscapes.Escape(tracking))
	fmt.Fprintf(&rule, "        author = \"%s\"\n", conv.YaraEscapes.Escape(options.author()))
	rule.WriteString("\n")
	rule.WriteString("    strings:\n")
	fmt.Fprintf(&rule, "        $hex = { %s }\n", conv.ToHexPattern([]byte(tracking)))
	rule.WriteString("\n")
	rule.WriteString("    condition:\n")
	rule.WriteString("        $hex\n")
	rule.WriteString("}")

	return rule.String()
}

// RuleName returns ruleName as a valid YARA identifier. If ruleName
// is empty, the name is "tracking_string_" followed by the first
// eight bytes of tracking.
func RuleName(tracking string, ruleName string) string {
	if ruleName == "" {
		ruleName = defaultRuleNamePrefix + tracking[:min(len(tracking), defaultRuleNameBytes)]
	}

	return SanitizeRuleName(ruleName)
}

// SanitizeRuleName replaces characters other than ASCII letters,
// digits and underscores with underscores. Names that would start
// with a digit, or that are empty, are prefixed with "rule_".
func SanitizeRuleName(name string) string {
	sanitized := []byte(name)

	for i, c := range sanitized {
		if !isIdentChar(c) {
			sanitized[i] = '_'
		}
	}

	if len(sanitized) == 0 || (sanitized[0] >= '0' && sanitized[0] <= '9') {
		return "rule_" + string(sanitized)
	}

	return string(sanitized)
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
