package harness

import "strings"

// Quote renders s as a single POSIX shell word. Strings made only of safe
// characters are returned unchanged; everything else is single-quoted.
// This is the only place where shell escaping happens.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, char := range s {
		if !isShellSafe(char) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(char rune) bool {
	switch {
	case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", char)
}

// Command is an argv array. It is rendered to a command line only at the
// endpoint boundary.
type Command []string

// Cmd builds a Command from a program name and its arguments.
func Cmd(name string, args ...string) Command {
	return append(Command{name}, args...)
}

// With returns a copy of c with args appended. Empty args are dropped so
// optional flags can be passed unconditionally.
func (c Command) With(args ...string) Command {
	out := append(Command{}, c...)
	for _, arg := range args {
		if arg != "" {
			out = append(out, arg)
		}
	}
	return out
}

func (c Command) String() string {
	words := make([]string, len(c))
	for i, arg := range c {
		words[i] = Quote(arg)
	}
	return strings.Join(words, " ")
}

// Request wraps c in a non-raw Request for the administrative binary.
func (c Command) Request(inputs ...string) Request {
	return Request{Command: c.String(), Inputs: inputs}
}

// Script is a POSIX shell command line composed from quoted commands.
type Script string

// Sh builds a Script running a single command.
func Sh(name string, args ...string) Script {
	return Script(Cmd(name, args...).String())
}

func (s Script) And(next Script) Script {
	return s + " && " + next
}

func (s Script) Or(next Script) Script {
	return s + " || " + next
}

// Then sequences next after s. A backgrounded s is not followed by ';'.
func (s Script) Then(next Script) Script {
	if strings.HasSuffix(string(s), "&") {
		return s + " " + next
	}
	return s + "; " + next
}

func (s Script) Background() Script {
	return s + " &"
}

func (s Script) WriteTo(path string) Script {
	return s + " > " + Script(Quote(path))
}

func (s Script) AppendTo(path string) Script {
	return s + " >> " + Script(Quote(path))
}

// Quiet discards both output streams of s.
func (s Script) Quiet() Script {
	return s + " >/dev/null 2>&1"
}

func (s Script) String() string {
	return string(s)
}

// Request wraps s in a raw Request.
func (s Script) Request() Request {
	return Request{Command: string(s), Raw: true}
}
