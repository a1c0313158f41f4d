// Package snippet generates source code that embeds a tracking string
// in a program built from it.
package snippet

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gitlab.com/stephen-fox/bredcrumb/conv"
)

// Language is a target language for a snippet.
type Language string

const (
	C          Language = "c"
	CPP        Language = "cpp"
	Go         Language = "go"
	Rust       Language = "rust"
	CSharp     Language = "csharp"
	Java       Language = "java"
	Python     Language = "python"
	JavaScript Language = "javascript"
	PowerShell Language = "powershell"
)

var aliases = map[string]Language{
	"c":          C,
	"cpp":        CPP,
	"c++":        CPP,
	"go":         Go,
	"golang":     Go,
	"rust":       Rust,
	"rs":         Rust,
	"csharp":     CSharp,
	"c#":         CSharp,
	"cs":         CSharp,
	"java":       Java,
	"python":     Python,
	"py":         Python,
	"javascript": JavaScript,
	"js":         JavaScript,
	"powershell": PowerShell,
	"ps1":        PowerShell,
	"ps":         PowerShell,
}

// ParseLanguage converts a language name or alias, such as "c#" or
// "py", into a Language. Matching is case-insensitive.
func ParseLanguage(name string) (Language, error) {
	lang, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported language: %q (expected one of: %s)",
			name, strings.Join(Names(), ", "))
	}

	return lang, nil
}

// Names returns the names and aliases accepted by ParseLanguage,
// sorted.
func Names() []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

type snippetData struct {
	// Value is the tracking string escaped for the target
	// language's double quoted literals.
	Value string

	// Len is the length of the unescaped string in bytes.
	Len int
}

type language struct {
	escapes conv.EscapeRule
	tmpl    *template.Template
}

var languages = map[Language]language{
	C:          {escapes: conv.CEscapes, tmpl: mustParse(C, cTemplate)},
	CPP:        {escapes: conv.CEscapes, tmpl: mustParse(CPP, cppTemplate)},
	Go:         {escapes: conv.GoEscapes, tmpl: mustParse(Go, goTemplate)},
	Rust:       {escapes: conv.RustByteEscapes, tmpl: mustParse(Rust, rustTemplate)},
	CSharp:     {escapes: conv.JavaEscapes, tmpl: mustParse(CSharp, csharpTemplate)},
	Java:       {escapes: conv.JavaEscapes, tmpl: mustParse(Java, javaTemplate)},
	Python:     {escapes: conv.PythonEscapes, tmpl: mustParse(Python, pythonTemplate)},
	JavaScript: {escapes: conv.JavaEscapes, tmpl: mustParse(JavaScript, javaScriptTemplate)},
	PowerShell: {escapes: conv.PowerShellEscapes, tmpl: mustParse(PowerShell, powerShellTemplate)},
}

func mustParse(lang Language, text string) *template.Template {
	return template.Must(template.New(string(lang)).Parse(text))
}

// Generate returns lang source code declaring tracking in a way that
// keeps it in the compiled program.
func Generate(lang Language, tracking string) (string, error) {
	l, ok := languages[lang]
	if !ok {
		return "", fmt.Errorf("unsupported language: %q", lang)
	}

	var sb strings.Builder

	err := l.tmpl.Execute(&sb, snippetData{
		Value: l.escapes.Escape(tracking),
		Len:   len(tracking),
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute %s template - %w", lang, err)
	}

	return sb.String(), nil
}
