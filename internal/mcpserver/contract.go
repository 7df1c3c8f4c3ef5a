package mcpserver

// DirectiveSyntax describes how documentation pages reference notebook cells.
// LLM consumers read it before writing or editing pages.
const DirectiveSyntax = `# nbsync Directive Syntax

A page is ordinary Markdown. Images and fenced code blocks that carry an
attribute list become directives: they are replaced by the source code or the
output of a notebook cell when the page is converted.

## Images

` + "```" + `markdown
![alt text](analysis.ipynb){#plot}
![alt text](scripts/plot.py){#plot exec=1 source=1 .wide width=80%}
![](){#other}
` + "```" + `

- The URL names the notebook, relative to the notebook directories. Supported
  extensions are ` + "`" + `.ipynb` + "`" + ` and ` + "`" + `.py` + "`" + ` (percent format).
- An empty URL or ` + "`" + `.` + "`" + ` reuses the last URL seen on the page.
- ` + "`" + `#identifier` + "`" + ` selects the cell tagged with that identifier.
  In a ` + "`" + `.py` + "`" + ` file tag a cell with a ` + "`" + `# #identifier` + "`" + ` comment
  on its first line.
- ` + "`" + `#_` + "`" + ` updates the notebook without emitting anything.
- An image without an identifier stays plain Markdown.

## Attributes

| Key | Values | Effect |
|-----|--------|--------|
| ` + "`" + `exec` + "`" + ` | yes, true, 1, on | Execute the notebook before converting. |
| ` + "`" + `source` + "`" + ` | yes, true, 1, on | Emit the cell source above its output. |
| ` + "`" + `source` + "`" + ` | only | Emit the cell source without its output. |
| ` + "`" + `source` + "`" + ` | tabbed-left, tabbed-right | Code blocks only: show the block in tabs next to the page. |

Other classes and ` + "`" + `key=value` + "`" + ` pairs are carried onto the emitted image or
code block.

## Code blocks

` + "```" + `markdown
` + "````" + `python {#setup exec=1}
import numpy as np
` + "````" + `
` + "```" + `

A fenced block with an identifier appends its body as a new cell to the
notebook named by the URL, or to the page's own notebook when the URL is
omitted. The block is dropped from the page unless ` + "`" + `source` + "`" + ` is set.

## Outputs

- Images and other binary outputs are written next to the page under a fresh
  file name and referenced from it.
- ` + "`" + `text/plain` + "`" + ` output is emitted as a fenced block.
- ` + "`" + `text/markdown` + "`" + ` and ` + "`" + `text/html` + "`" + ` output are emitted as is.
`
