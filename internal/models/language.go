package models

import "strings"

// Language identifies a toolchain the backend knows how to run.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
)

// Languages lists every supported language in a stable order.
var Languages = []Language{
	LanguageJavaScript,
	LanguagePython,
	LanguageJava,
	LanguageC,
	LanguageCPP,
}

var languageAliases = map[string]Language{
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"node":       LanguageJavaScript,
	"python":     LanguagePython,
	"python3":    LanguagePython,
	"py":         LanguagePython,
	"java":       LanguageJava,
	"c":          LanguageC,
	"cpp":        LanguageCPP,
	"c++":        LanguageCPP,
}

// ParseLanguage normalizes user input to a supported Language.
// The second result is false for unknown languages.
func ParseLanguage(s string) (Language, bool) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(s))]
	return lang, ok
}

func (l Language) String() string { return string(l) }
