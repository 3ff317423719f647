package validator

import (
	"strings"
)

// checkWhitelist inspects the leading token of every non-blank line. It is
// purely lexical: control structures, pipelines and later commands on the
// same line are not seen here.
func checkWhitelist(script string, allowed AllowedCommandSet) Verdict {
	for _, line := range strings.Split(script, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		command := fields[0]
		// a line whose first token starts with # is a comment to the shell
		if strings.HasPrefix(command, "#") {
			continue
		}
		if !allowed.Contains(command) {
			return reject(GateWhitelist, "'%s' is not in the whitelist", command)
		}
	}
	return accept()
}
