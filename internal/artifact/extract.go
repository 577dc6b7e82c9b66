package artifact

import (
	"regexp"
	"strings"

	"github.com/cliengineer/cliengineer/internal/logger"
)

// Prospective is a file candidate parsed from model output, not yet
// written to disk.
type Prospective struct {
	Name    string
	Type    string
	Content string
}

// artifactOpenTag matches <artifact name="..." type="..."> with either
// quote style and free attribute order.
var artifactOpenTag = regexp.MustCompile(`(?s)<artifact\s+([^>]*)>`)
var attrPattern = regexp.MustCompile(`(\w+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

const closeTag = "</artifact>"

// ExtractArtifacts recognizes <artifact name="..." type="..."> ...
// </artifact> blocks, tolerates malformed ones (skips and logs), and is
// linear over the input text. Nested <artifact> is invalid and skipped.
func ExtractArtifacts(text string) []Prospective {
	var out []Prospective

	pos := 0
	for pos < len(text) {
		loc := artifactOpenTag.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		tagStart := pos + loc[0]
		tagEnd := pos + loc[1]
		attrs := text[pos+loc[2] : pos+loc[3]]

		name, typ, ok := parseAttrs(attrs)
		if !ok {
			logger.Warn("artifact: skipping malformed <artifact> tag (missing name/type) at offset %d", tagStart)
			pos = tagEnd
			continue
		}

		closeIdx := strings.Index(text[tagEnd:], closeTag)
		if closeIdx == -1 {
			logger.Warn("artifact: skipping <artifact name=%q> with no closing tag", name)
			pos = tagEnd
			continue
		}

		content := text[tagEnd : tagEnd+closeIdx]

		// Reject nested <artifact> blocks.
		if strings.Contains(content, "<artifact") {
			logger.Warn("artifact: skipping <artifact name=%q> containing a nested <artifact> block", name)
			pos = tagEnd + closeIdx + len(closeTag)
			continue
		}

		out = append(out, Prospective{Name: name, Type: typ, Content: content})
		pos = tagEnd + closeIdx + len(closeTag)
	}

	return out
}

func parseAttrs(raw string) (name, typ string, ok bool) {
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		key := m[1]
		val := m[2]
		if val == "" {
			val = m[3]
		}
		switch key {
		case "name":
			name = val
		case "type":
			typ = val
		}
	}
	return name, typ, name != ""
}
