package launch

import (
	"fmt"
	"strings"
)

type scriptParams struct {
	LockFile string
	LogFile  string
	Command  string
}

// renderScript builds the launcher run inside the detached child. The lock
// it writes names the shell's own pid, and the EXIT trap removes the lock and
// the script on every way out of the command.
func renderScript(p scriptParams) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "LOCK_FILE=%s\n", shellQuote(p.LockFile))
	fmt.Fprintf(&b, "LOG_FILE=%s\n", shellQuote(p.LogFile))
	b.WriteString(`trap 'rm -f "$LOCK_FILE" "$LOCK_FILE.$$" "$0"' EXIT` + "\n")
	b.WriteString("trap '' HUP\n")
	b.WriteString("trap 'exit 130' INT\n")
	b.WriteString("trap 'exit 143' TERM\n")
	// Write then rename so a reader never sees a truncated record.
	b.WriteString(`{ echo $$ > "$LOCK_FILE.$$" && mv -f "$LOCK_FILE.$$" "$LOCK_FILE"; } || exit 1` + "\n")
	b.WriteString(`mkdir -p "$(dirname "$LOG_FILE")" || exit 1` + "\n")
	// The command runs in its own subshell so an exit in it still reaches
	// the failure marker.
	b.WriteString("{\n(\n")
	b.WriteString(strings.TrimRight(p.Command, "\n"))
	b.WriteString("\n) || echo Failed\n")
	b.WriteString(`} 2>&1 | while IFS= read -r line || [ -n "$line" ]; do ` +
		`printf '%s %s\n' "$(date '+%b %d %H:%M:%S')" "$line"; ` +
		`done >> "$LOG_FILE"` + "\n")
	return b.String()
}

// shellQuote wraps s in single quotes for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
