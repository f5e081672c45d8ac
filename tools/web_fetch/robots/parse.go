// Package robots implements the subset of robots.txt the harvester honours:
// User-agent groups and Disallow prefixes.
package robots

import (
	"bufio"
	"strings"
)

type group struct {
	agents    []string
	disallows []string
}

// Rules is a parsed robots.txt body.
type Rules struct {
	groups []group
}

// Parse reads User-agent and Disallow lines. Comments, blank lines and every
// other directive are ignored. Consecutive User-agent lines share one group.
func Parse(body string) *Rules {
	rules := &Rules{}
	var cur *group
	lastWasAgent := false

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if cur == nil || !lastWasAgent {
				rules.groups = append(rules.groups, group{})
				cur = &rules.groups[len(rules.groups)-1]
			}
			cur.agents = append(cur.agents, strings.ToLower(value))
			lastWasAgent = true
		case "disallow":
			lastWasAgent = false
			if cur == nil || value == "" {
				continue
			}
			cur.disallows = append(cur.disallows, value)
		default:
			lastWasAgent = false
		}
	}
	return rules
}

// Allowed reports whether userAgent may fetch path. Rules from the "*" group
// and from any group naming the agent (its full string or product token)
// both apply.
func (r *Rules) Allowed(userAgent, path string) bool {
	if r == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	full, token := agentNames(userAgent)
	for _, g := range r.groups {
		if !g.matches(full, token) {
			continue
		}
		for _, prefix := range g.disallows {
			if strings.HasPrefix(path, prefix) {
				return false
			}
		}
	}
	return true
}

func (g group) matches(full, token string) bool {
	for _, a := range g.agents {
		if a == "*" || (a != "" && (a == full || a == token)) {
			return true
		}
	}
	return false
}

// agentNames returns the lower-cased agent string and its product token,
// e.g. "newser-evidence" for "newser-evidence/1.0 (+https://...)".
func agentNames(userAgent string) (string, string) {
	full := strings.ToLower(strings.TrimSpace(userAgent))
	token := full
	if i := strings.IndexAny(token, "/ "); i >= 0 {
		token = token[:i]
	}
	return full, token
}
