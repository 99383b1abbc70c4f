package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Ansuz Note Format Contract

Every Markdown note stored in Ansuz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search, sidebar, graph
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
created: 2025-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|alias]] for display text that differs from the target.
Use ![[target]] to embed another document, ![[base#View]] to embed a view.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `title` + "`" + ` field is required.** It is the primary display name everywhere.
3. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
4. **Wikilinks** use double brackets: ` + "`" + `[[other-note]]` + "`" + `. The target is the
   filename stem (no ` + "`" + `.md` + "`" + ` extension, path separators OK: ` + "`" + `[[folder/note]]` + "`" + `).
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8 with a trailing newline.
7. **No HTML** unless absolutely necessary; prefer Markdown equivalents.
8. **Callouts** are blockquotes opening with ` + "`" + `> [!type] Optional title` + "`" + `;
   continuation lines stay inside the same blockquote.

## Bases

- A standalone ` + "`" + `.base` + "`" + ` file is a YAML query over note frontmatter:
  ` + "`" + `filters` + "`" + `, ` + "`" + `formulas` + "`" + `, and a ` + "`" + `views` + "`" + ` list (table, cards, list).
- Filter expressions reference frontmatter keys directly (` + "`" + `status == "open"` + "`" + `),
  file metadata via ` + "`" + `file.<x>` + "`" + `, and formulas via ` + "`" + `formula.<x>` + "`" + `.
- A fenced ` + "```" + `base` + "```" + ` block inside a note defines an inline base scoped
  to that document.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
  - project-x
created: 2025-01-20
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

> [!note] Decisions
> Shipping moved to Friday.

## Action items

- [[alice]] to review the [[design-doc]]
- Bob to update [[project-x/roadmap|the roadmap]]

![[open-tasks.base#By Owner]]
` + "```" + `
`
