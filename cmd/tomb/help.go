package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/ui"
)

// Patterns applied to cobra's plain help text.
var (
	// Group headers such as "Records:" or "Flags:".
	reHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)

	// Two-space indented command name followed by its description.
	reCommandName = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	// Argument placeholders such as <type/id>.
	rePlaceholder = regexp.MustCompile(`<[a-z/_-]+>(\.\.\.)?`)

	// Flag type annotations and defaults.
	reFlagType = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|strings)`)
	reDefault  = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc returns a help function that styles cobra's usage text
// when stdout supports color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = reHeader.ReplaceAllStringFunc(s, func(m string) string {
		return ui.RenderAccent(strings.TrimSpace(m))
	})
	s = reCommandName.ReplaceAllString(s, "$1"+ui.RenderCommand("$2")+"$3")
	s = rePlaceholder.ReplaceAllStringFunc(s, ui.RenderMuted)
	s = reFlagType.ReplaceAllString(s, "$1"+ui.RenderMuted("$2"))
	return reDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
