package mention

import "regexp"

// mentionPattern matches an `@agentId` token inside a message body. Agent
// ids are opaque strings; this accepts the common identifier charset
// (letters, digits, dash, underscore, dot) since the Hub does not impose a
// stricter grammar on agentId itself.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

// ParseBody extracts the set of `@agentId` mentions from a message body,
// in order of first appearance. Callers that already have an explicit mentions
// list (the sendMessage Tool-Surface parameter) should prefer that list;
// ParseBody exists for callers that only have free text, e.g. a human
// request arriving at the coordinator agent.
func ParseBody(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
