package detect

import (
	"path"
	"strings"
)

// shells are interpreters that indicate a person is typing into the terminal.
var shells = map[string]bool{
	"bash": true, "sh": true, "zsh": true, "fish": true, "dash": true,
	"ksh": true, "tcsh": true, "csh": true,
	"python": true, "python3": true, "ipython": true,
	"ruby": true, "irb": true,
	"node": true,
	"claude": true,
}

// emulators are matched as substrings of the executable name.
var emulators = []string{
	"terminal", "iterm", "xterm", "konsole", "gnome-terminal",
	"alacritty", "kitty", "wezterm",
}

// excludedExecutables hold a terminal but are never conversations.
var excludedExecutables = map[string]bool{
	"ps": true, "grep": true, "lsof": true,
	"sshd": true, "sftp-server": true,
	"sleep": true, "tail": true, "cat": true, "head": true,
	"timeout": true, "script": true,
	"docker": true, "containerd-shim": true, "runc": true,
}

// excludedFragments mark wrapper invocations anywhere in the command line.
var excludedFragments = []string{
	"sh -c", // also bash -c, zsh -c, dash -c
	"ps aux", "ps -ef",
	"docker exec", "docker run",
	"sftp-server",
	"tail -f",
}

// executable returns the base name of the program in command. Login shells
// are reported by ps with a leading dash.
func executable(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(path.Base(fields[0]), "-")
}

func isShell(exe string) bool {
	if shells[exe] {
		return true
	}
	return strings.HasPrefix(exe, "python")
}

func isEmulator(exe string) bool {
	lower := strings.ToLower(exe)
	for _, e := range emulators {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

func isExcluded(command string) bool {
	if excludedExecutables[executable(command)] {
		return true
	}
	lower := strings.ToLower(command)
	for _, frag := range excludedFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func looksLikeShell(command string) bool {
	exe := executable(command)
	return isShell(exe) || isEmulator(exe)
}

// hasTerminal reports whether tty names a real device rather than ps's
// "no terminal" marker.
func hasTerminal(tty string) bool {
	switch tty {
	case "", "?", "-", "??":
		return false
	}
	return strings.HasPrefix(tty, "pts/") || strings.HasPrefix(tty, "tty") ||
		strings.HasPrefix(tty, "/dev/pts/") || strings.HasPrefix(tty, "/dev/tty")
}

// IsInteractive reports whether p is a person-facing terminal session: it
// has a real terminal, is not a known wrapper or tool, and runs a shell,
// interpreter or terminal emulator.
func IsInteractive(p Process) bool {
	if !hasTerminal(p.TTY) {
		return false
	}
	if isExcluded(p.Command) {
		return false
	}
	return looksLikeShell(p.Command)
}
