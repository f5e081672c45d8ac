package web_fetch

import (
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)

	// single pass, so "&amp;lt;" becomes "&lt;" and not "<"
	entities = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// CleanHTML drops script and style blocks, strips the remaining tags,
// decodes the common entities and collapses whitespace.
func CleanHTML(raw string) string {
	s := scriptBlock.ReplaceAllString(raw, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	s = entities.Replace(s)
	return CollapseWhitespace(s)
}

// CollapseWhitespace turns every whitespace run into a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
