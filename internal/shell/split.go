package shell

import (
	"strings"
	"unicode"
)

// SplitLine breaks a command line into arguments. Single and double quotes
// group words and an empty pair of quotes makes an empty argument. The
// escapes \b \n \r \t are translated; an escaped quote, backslash or space
// is kept literally; any other escape keeps its backslash.
func SplitLine(line string) []string {
	var (
		args   []string
		arg    strings.Builder
		inArg  bool
		quote  rune
		escape bool
	)
	for _, ch := range line {
		if escape {
			escape = false
			switch ch {
			case 'b':
				arg.WriteRune('\b')
			case 'n':
				arg.WriteRune('\n')
			case 'r':
				arg.WriteRune('\r')
			case 't':
				arg.WriteRune('\t')
			case '"', '\'', '\\', ' ':
				arg.WriteRune(ch)
			default:
				arg.WriteRune('\\')
				arg.WriteRune(ch)
			}
			inArg = true
			continue
		}
		switch {
		case ch == '\\':
			escape = true
			continue
		case quote != 0 && ch == quote:
			quote = 0
			continue
		case quote == 0 && (ch == '\'' || ch == '"'):
			quote = ch
			inArg = true
			continue
		case quote == 0 && unicode.IsSpace(ch):
			if inArg {
				args = append(args, arg.String())
				arg.Reset()
				inArg = false
			}
			continue
		}
		arg.WriteRune(ch)
		inArg = true
	}
	if escape {
		arg.WriteRune('\\')
		inArg = true
	}
	if inArg {
		args = append(args, arg.String())
	}
	return args
}

// redirection splits a trailing "> file" or ">> file" off args.
func redirection(args []string) (rest []string, target string, appending bool) {
	n := len(args)
	if n >= 2 {
		switch args[n-2] {
		case ">":
			return args[:n-2], args[n-1], false
		case ">>":
			return args[:n-2], args[n-1], true
		}
	}
	return args, "", false
}
