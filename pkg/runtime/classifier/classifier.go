// Package classifier implements the Request Classifier: a data-driven
// table that routes an incoming human request, on the coordinator agent,
// to (a) the specialist agent it should @mention and (b) the wait budget
// the coordinator should use for the reply. New request classes are
// added by editing the table, never by editing dispatch control flow.
package classifier

import "strings"

// Class names the kind of work a request represents.
type Class string

const (
	ClassMediaCreation Class = "media-creation"
	ClassNewsQuery     Class = "news-query"
	ClassAutomation    Class = "automation"
	ClassGeneral       Class = "general"
)

// Rule matches a request body against a set of keywords; the first Rule
// in the table whose keyword appears in the (lowercased) body wins. WaitMs
// and SpecialistID carry the two things classification actually decides:
// the coordinator's own waitForMentions budget for the reply, and which
// agent id to address via mentions. SpecialistID is empty only for the
// General fallback, which is resolved by capability best-guess rather
// than a fixed id.
type Rule struct {
	Class        Class
	Keywords     []string
	WaitMs       int
	SpecialistID string
}

// GeneralRule is returned by Route when no table entry matches: a
// 20,000ms wait budget and no fixed specialist id, since the general
// class is resolved by capability match rather than a literal agent id.
var GeneralRule = Rule{Class: ClassGeneral, WaitMs: 20000, SpecialistID: ""}

// DefaultTable is the built-in classification table:
//
//	media-creation: "song", "music", "compose", "track" -> 60,000ms -> media-creation agent
//	news-query:     "news", "latest", "headline"        -> 15,000ms -> news agent
//	automation:     "upload", "comment", "quota"         -> 30,000ms -> automation agent
func DefaultTable() []Rule {
	return []Rule{
		{Class: ClassMediaCreation, Keywords: []string{"song", "music", "compose", "track"}, WaitMs: 60000, SpecialistID: "media-creation-agent"},
		{Class: ClassNewsQuery, Keywords: []string{"news", "latest", "headline"}, WaitMs: 15000, SpecialistID: "news-agent"},
		{Class: ClassAutomation, Keywords: []string{"upload", "comment", "quota"}, WaitMs: 30000, SpecialistID: "automation-agent"},
	}
}

// Route returns the first Rule in table whose keyword appears in the
// (lowercased) body, or GeneralRule if none match. This is the full
// classification result: class, wait budget, and specialist id together.
func Route(body string, table []Rule) Rule {
	lower := strings.ToLower(body)
	for _, rule := range table {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule
			}
		}
	}
	return GeneralRule
}

// Classify returns just the Class of the first matching Rule in table,
// or ClassGeneral if none match. It is a convenience wrapper over Route
// for callers (like the MockBrain) that only need the class, not the
// full routing decision.
func Classify(body string, table []Rule) Class {
	return Route(body, table).Class
}
