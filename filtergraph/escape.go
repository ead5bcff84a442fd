package filtergraph

import "strings"

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeValue escapes a filter option value (typically a path) for both
// levels ffmpeg parses: the option string and the surrounding graph.
func EscapeValue(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}
