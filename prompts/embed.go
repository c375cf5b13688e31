// Package prompts embeds the agent prompt templates so the service binary is
// self-contained. Templates are plain text with {placeholder} variables; the
// YAML index maps a prompt name to its template file and system prompt file.
package prompts

import "embed"

//go:embed index.yaml *.md
var files embed.FS
