package validator

import (
	"bytes"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// checkStructure parses the script into a shell AST and requires every
// command name reachable in it to be a literal allowed name. This catches
// what the line gate cannot see: `ls; rm -rf /`, `cat x | sh`,
// `echo $(rm f)`, loop bodies and commands launched through wrappers such
// as xargs or find -exec.
func checkStructure(script string, lang syntax.LangVariant, allowed AllowedCommandSet) Verdict {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(lang))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return reject(GateStructure, "script does not parse: %v", err)
	}

	verdict := accept()
	syntax.Walk(file, func(node syntax.Node) bool {
		if !verdict.Accepted {
			return false
		}
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}

		name := call.Args[0].Lit()
		if name == "" {
			verdict = reject(GateStructure, "command name %s is not a literal word", printWord(call.Args[0]))
			return false
		}
		if !allowed.Contains(name) {
			verdict = reject(GateStructure, "'%s' is not in the whitelist", name)
			return false
		}

		args := make([]string, 0, len(call.Args)-1)
		for _, w := range call.Args[1:] {
			args = append(args, w.Lit())
		}
		for _, inner := range wrappedCommands(name, args) {
			if !allowed.Contains(inner) {
				verdict = reject(GateStructure, "'%s' (run via %s) is not in the whitelist", inner, name)
				return false
			}
		}
		return true
	})
	return verdict
}

// langFor maps the configured dialect to a parser variant.
func langFor(dialect string) syntax.LangVariant {
	switch dialect {
	case "sh", "posix", "dash":
		return syntax.LangPOSIX
	case "mksh", "ksh":
		return syntax.LangMirBSDKorn
	default:
		return syntax.LangBash
	}
}

// xargsValueFlags take a separate argument when written alone.
var xargsValueFlags = map[string]bool{
	"-I": true, "-n": true, "-P": true, "-d": true,
	"-L": true, "-s": true, "-E": true, "-a": true,
}

// wrappedCommands returns the command names an allowed command would itself
// execute. Non-literal arguments arrive as "".
func wrappedCommands(name string, args []string) []string {
	switch name {
	case "xargs":
		for i := 0; i < len(args); i++ {
			a := args[i]
			if xargsValueFlags[a] {
				i++
				continue
			}
			if strings.HasPrefix(a, "-") {
				continue
			}
			return []string{a}
		}
	case "time", "nohup", "command", "exec", "builtin":
		for _, a := range args {
			if strings.HasPrefix(a, "-") {
				continue
			}
			return []string{a}
		}
	case "nice":
		for i := 0; i < len(args); i++ {
			if args[i] == "-n" {
				i++
				continue
			}
			if strings.HasPrefix(args[i], "-") {
				continue
			}
			return []string{args[i]}
		}
	case "env":
		for _, a := range args {
			if strings.HasPrefix(a, "-") || strings.Contains(a, "=") {
				continue
			}
			return []string{a}
		}
	case "find":
		var out []string
		for i, a := range args {
			switch a {
			case "-exec", "-execdir", "-ok", "-okdir":
				if i+1 < len(args) {
					out = append(out, args[i+1])
				} else {
					out = append(out, "")
				}
			}
		}
		return out
	}
	return nil
}

func printWord(w *syntax.Word) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, w); err != nil {
		return "<unprintable>"
	}
	return buf.String()
}
