package mcpserver

// LinkGuide explains how note titles are derived and how wiki-links
// resolve, so clients can write links that land on the intended note.
const LinkGuide = `# Wiki-link Syntax

## Titles

A note's title is taken from, in order:

1. the title given explicitly at import time,
2. the ` + "`" + `title` + "`" + ` field of the YAML frontmatter,
3. the first ` + "`" + `# Heading` + "`" + ` of the body,
4. the file name without the ` + "`" + `.md` + "`" + ` extension.

## Links

- ` + "`" + `[[Title]]` + "`" + ` links to the note whose title is exactly ` + "`" + `Title` + "`" + `
  (surrounding spaces are ignored, case matters).
- ` + "`" + `[[Title|label]]` + "`" + ` shows ` + "`" + `label` + "`" + ` but still targets ` + "`" + `Title` + "`" + `.
- Links inside fenced code blocks and inline code spans are ignored.
- Links in the frontmatter are ignored.
- A link to a title no note carries is kept as unresolved and is bound
  automatically once such a note is imported and a reindex runs.
- When two notes share a title, links resolve to the one whose path sorts last.

## Updating the graph

Links only change when the ` + "`" + `reindex` + "`" + ` tool runs. After creating or editing
files, call ` + "`" + `import_notes` + "`" + ` (or ` + "`" + `import_notes` + "`" + ` with ` + "`" + `scan` + "`" + `) and then ` + "`" + `reindex` + "`" + `.

## Example

` + "```" + `markdown
---
title: Weekly standup
tags:
  - meeting-notes
---

- [[Alice]] to review the [[Design Doc|design]]
- Bob to update [[Roadmap]]
` + "```" + `
`
