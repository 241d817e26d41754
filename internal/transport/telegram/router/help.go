package router

import (
	"strings"
)

// helpText renders help in HTML parse mode: the command list, or details
// for one command when args name it.
func (m *CommandManager) helpText(args []string) string {
	if len(args) > 0 {
		word := sanitizeTelegramCommand(strings.TrimPrefix(args[0], "/"))
		c, ok := m.lookup(word)
		if !ok {
			return "❓ <b>Unknown command</b>\nType <code>/help</code> for the command list."
		}
		return helpCommandHTML(c)
	}

	cmds := m.commands()
	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	// Owner-only commands go last; the list is already sorted by name.
	for _, pass := range []Access{AccessEveryone, AccessOwnerOnly} {
		for _, c := range cmds {
			if c.Access != pass {
				continue
			}
			prefix := "• "
			if c.Access == AccessOwnerOnly {
				prefix = "• 🔒 "
			}
			line := prefix + "<code>/" + escape(c.Name) + "</code>"
			if d := strings.TrimSpace(c.Description); d != "" {
				line += " - " + escape(d)
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + escape(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, escape(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<pre>"+escape(u)+"</pre>")
	}
	if len(c.Aliases) > 0 {
		short := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			short = append(short, "<code>/"+escape(a)+"</code>")
		}
		lines = append(lines, "", "<b>Aliases</b> "+strings.Join(short, ", "))
	}
	return strings.Join(lines, "\n")
}
