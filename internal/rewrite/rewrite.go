// Package rewrite implements the single-pass document transform: wikilinks,
// embeds, callouts, and inline base blocks are resolved to the component
// grammar consumed by the rendering layer. Spans are classified before any
// substitution, so precedence between overlapping syntaxes (fenced code
// over callouts over embeds over plain links) is structural.
package rewrite

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Result is the output of one document transform.
type Result struct {
	Body   string
	Blocks []InlineBlock
	Links  []models.LinkRef
}

// InlineBlock is an extracted fenced block tagged with the base language.
// The block is removed from the body and replaced with a placeholder
// referencing it by name.
type InlineBlock struct {
	Name    string
	Content string
}

// baseLang tags fenced blocks holding inline Base definitions.
const baseLang = "base"

// Transform rewrites a raw document body in one left-to-right pass.
// Fenced code stays verbatim except base-tagged fences, which are
// extracted; callout blockquotes become callout containers; embeds and
// wikilinks become component references. A span consumed by an earlier
// class is never re-matched by a later one.
func Transform(raw string) *Result {
	res := &Result{}
	lines := strings.Split(raw, "\n")
	var out []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if fence, lang := fenceOpen(line); fence != "" {
			body, next := collectFence(lines, i+1, fence)
			if lang == baseLang {
				name := fmt.Sprintf("inline-%d", len(res.Blocks))
				res.Blocks = append(res.Blocks, InlineBlock{Name: name, Content: body})
				out = append(out, fmt.Sprintf(":base-view{name=%q}", name))
			} else {
				out = append(out, lines[i:next]...)
				if next < len(lines) {
					out = append(out, lines[next])
				}
			}
			i = next
			continue
		}

		if kind, title, ok := calloutOpen(line); ok {
			body, next := collectCallout(lines, i+1)
			out = append(out, renderCallout(kind, title, body, res)...)
			i = next - 1
			continue
		}

		out = append(out, res.rewriteInline(line))
	}

	res.Body = strings.Join(out, "\n")
	return res
}

// fenceOpen reports the fence marker and language tag when line opens a
// fenced code block.
func fenceOpen(line string) (marker, lang string) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "```") {
		return "", ""
	}
	n := 3
	for n < len(trimmed) && trimmed[n] == '`' {
		n++
	}
	return trimmed[:n], strings.ToLower(strings.TrimSpace(trimmed[n:]))
}

// collectFence returns the fence body and the index of the closing fence
// line (or len(lines) when unterminated).
func collectFence(lines []string, start int, marker string) (string, int) {
	var body []string
	for i := start; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		if strings.HasPrefix(trimmed, marker) && strings.TrimRight(trimmed, "`") == "" {
			return strings.Join(body, "\n"), i
		}
		body = append(body, lines[i])
	}
	return strings.Join(body, "\n"), len(lines)
}

// calloutOpen matches "> [!kind] optional title".
func calloutOpen(line string) (kind, title string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, ">") {
		return "", "", false
	}
	rest := strings.TrimLeft(trimmed[1:], " ")
	if !strings.HasPrefix(rest, "[!") {
		return "", "", false
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", "", false
	}
	kind = strings.ToLower(rest[2:end])
	if kind == "" {
		return "", "", false
	}
	title = strings.TrimSpace(rest[end+1:])
	return kind, title, true
}

// collectCallout gathers quoted continuation lines, returning the stripped
// body and the index of the first line after the callout.
func collectCallout(lines []string, start int) ([]string, int) {
	var body []string
	i := start
	for ; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		if !strings.HasPrefix(trimmed, ">") {
			break
		}
		body = append(body, strings.TrimPrefix(strings.TrimPrefix(trimmed, ">"), " "))
	}
	return body, i
}

func renderCallout(kind, title string, body []string, res *Result) []string {
	open := fmt.Sprintf("::callout{type=%q", kind)
	if title != "" {
		// Titles carry inline syntax too; a wikilink here is rewritten
		// and recorded like one in the body.
		open += fmt.Sprintf(" title=%q", res.rewriteInline(title))
	}
	open += "}"
	out := []string{open}
	for _, line := range body {
		out = append(out, res.rewriteInline(line))
	}
	return append(out, "::")
}

// rewriteInline rewrites embeds and wikilinks in one line, skipping
// inline code spans. Embeds match before plain links, so an embed is
// never re-matched as a wikilink.
func (res *Result) rewriteInline(line string) string {
	if !strings.Contains(line, "[[") {
		return line
	}

	var sb strings.Builder
	inCode := false
	for pos := 0; pos < len(line); {
		c := line[pos]
		if c == '`' {
			inCode = !inCode
			sb.WriteByte(c)
			pos++
			continue
		}
		if inCode {
			sb.WriteByte(c)
			pos++
			continue
		}

		embed := c == '!' && strings.HasPrefix(line[pos:], "![[")
		if embed || strings.HasPrefix(line[pos:], "[[") {
			open := pos + 2
			if embed {
				open++
			}
			end := strings.Index(line[open:], "]]")
			if end < 0 {
				sb.WriteByte(c)
				pos++
				continue
			}
			ref := parseRef(line[open:open+end], embed)
			if ref.Target == "" {
				sb.WriteByte(c)
				pos++
				continue
			}
			res.Links = append(res.Links, ref)
			if embed {
				sb.WriteString(renderEmbed(ref))
			} else {
				sb.WriteString(renderLink(ref))
			}
			pos = open + end + 2
			continue
		}

		sb.WriteByte(c)
		pos++
	}
	return sb.String()
}

// parseRef splits "target#fragment|alias" with both parts optional.
func parseRef(raw string, embed bool) models.LinkRef {
	ref := models.LinkRef{Embed: embed}
	if i := strings.IndexByte(raw, '|'); i >= 0 {
		ref.Alias = strings.TrimSpace(raw[i+1:])
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		ref.Fragment = strings.TrimSpace(raw[i+1:])
		raw = raw[:i]
	}
	ref.Target = strings.TrimSpace(raw)
	return ref
}

func renderLink(ref models.LinkRef) string {
	display := ref.Alias
	if display == "" {
		display = ref.Target
		if ref.Fragment != "" {
			display += " > " + ref.Fragment
		}
	}
	return fmt.Sprintf("[%s](%s)", display, targetHref(ref))
}

func renderEmbed(ref models.LinkRef) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(":embed{target=%q", ref.Target))
	if ref.Fragment != "" {
		sb.WriteString(fmt.Sprintf(" view=%q", ref.Fragment))
	}
	if ref.Alias != "" {
		sb.WriteString(fmt.Sprintf(" alias=%q", ref.Alias))
	}
	sb.WriteString("}")
	return sb.String()
}

// targetHref maps a wikilink target to a site-root path, dropping the .md
// extension and normalizing spaces.
func targetHref(ref models.LinkRef) string {
	p := strings.TrimSuffix(ref.Target, ".md")
	p = "/" + strings.Trim(p, "/")
	p = strings.ReplaceAll(p, " ", "%20")
	if ref.Fragment != "" {
		p += "#" + strings.ReplaceAll(ref.Fragment, " ", "%20")
	}
	return p
}
