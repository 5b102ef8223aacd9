package alttext

import _ "embed"

//go:embed prompt.md
var promptText string

// Prompt returns the instruction sent alongside every image. It is
// persisted on the result row before each call so the stored output can be
// traced back to the exact wording that produced it.
func Prompt() string {
	return promptText
}
