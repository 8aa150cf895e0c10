package crontab

import "strings"

type line struct {
	raw   string
	entry *Entry
}

func parse(s string) []line {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	raw := strings.Split(s, "\n")
	out := make([]line, 0, len(raw))
	for _, r := range raw {
		out = append(out, line{raw: r, entry: parseEntry(r)})
	}
	return out
}

func parseEntry(raw string) *Entry {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}
	i := strings.LastIndex(trimmed, marker)
	if i < 0 {
		return nil
	}
	tag := strings.TrimSpace(trimmed[i+len(marker):])
	body := strings.TrimSpace(trimmed[:i])
	if tag == "" || body == "" {
		return nil
	}
	rule, action := splitRule(body)
	if rule == "" {
		return nil
	}
	return &Entry{Tag: tag, Rule: rule, Action: unescapeAction(action)}
}

// splitRule separates the schedule from the command: an @descriptor takes
// one field (two for @every), a classic rule takes five.
func splitRule(body string) (string, string) {
	fields := strings.Fields(body)
	n := 5
	if len(fields) > 0 && strings.HasPrefix(fields[0], "@") {
		n = 1
		if fields[0] == "@every" {
			n = 2
		}
	}
	if len(fields) <= n {
		return "", ""
	}
	rest := body
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		j := strings.IndexAny(rest, " \t")
		rest = rest[j:]
	}
	return strings.Join(fields[:n], " "), strings.TrimSpace(rest)
}

func render(lines []line) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// cron turns an unescaped % into a newline, so literal percents need a
// backslash.
func escapeAction(s string) string {
	return strings.ReplaceAll(s, "%", `\%`)
}

func unescapeAction(s string) string {
	return strings.ReplaceAll(s, `\%`, "%")
}
