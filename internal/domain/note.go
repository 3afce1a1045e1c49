package domain

import "strings"

// Note is a persisted record under the vault. Path uniquely identifies the
// note; collisions are resolved by the vault store with a numeric suffix.
type Note struct {
	Path        string
	FrontMatter FrontMatter
	Body        string
}

// Render serializes the note to its on-disk text form: a leading `---`,
// frontmatter lines, a trailing `---`, a blank line, then the body.
// UTF-8 without BOM.
func (n Note) Render() string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(n.FrontMatter.Render())
	b.WriteString("---\n\n")
	b.WriteString(n.Body)
	return b.String()
}

// ParseNote splits raw note text into its frontmatter and body. Tolerant of
// malformed or missing frontmatter: if no closing `---` is found, the whole
// text is treated as body with empty frontmatter.
func ParseNote(raw string) (FrontMatter, string) {
	if !strings.HasPrefix(raw, "---\n") && raw != "---" {
		return nil, raw
	}
	rest := strings.TrimPrefix(raw, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, raw
	}
	fmBlock := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	return ParseFrontMatter(fmBlock), body
}

// NoteSummary is the lightweight projection returned by get_recent_notes.
type NoteSummary struct {
	Path      string
	Title     string
	EventType string
	Date      string
}
