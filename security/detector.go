// Package security inspects inbound requests for known attack patterns,
// records incidents and maintains the blocked-IP list.
package security

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LordMirex/mytypist-backend/models"
)

type threatPattern struct {
	token    string
	kind     models.PatternType
	severity models.ThreatLevel
	label    string
}

var threatPatterns = []threatPattern{
	{"union select", models.PatternSQLInjection, models.ThreatHigh, "SQL injection"},
	{"drop table", models.PatternSQLInjection, models.ThreatHigh, "SQL injection"},
	{"insert into", models.PatternSQLInjection, models.ThreatHigh, "SQL injection"},
	{"delete from", models.PatternSQLInjection, models.ThreatHigh, "SQL injection"},
	{"<script", models.PatternXSS, models.ThreatMedium, "XSS"},
	{"javascript:", models.PatternXSS, models.ThreatMedium, "XSS"},
	{"onload=", models.PatternXSS, models.ThreatMedium, "XSS"},
}

var recommendedActions = map[models.PatternType][]string{
	models.PatternSQLInjection: {"Block IP address", "Review database queries", "Implement input validation"},
	models.PatternXSS:          {"Sanitize user input", "Implement CSP headers", "Review frontend code"},
}

// DetectThreats scans target case-insensitively for every known pattern and
// returns the matches ordered by descending severity.
func DetectThreats(target string) []models.ThreatMatch {
	s := strings.ToLower(target)

	var matches []models.ThreatMatch
	for _, p := range threatPatterns {
		if !strings.Contains(s, p.token) {
			continue
		}
		matches = append(matches, models.ThreatMatch{
			PatternType: p.kind,
			Severity:    p.severity,
			Description: fmt.Sprintf("%s pattern detected: %s", p.label, p.token),
			Pattern:     p.token,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Severity.Rank() > matches[j].Severity.Rank()
	})
	return matches
}

// RecommendedActions lists the distinct follow-ups for a set of matches, sorted.
func RecommendedActions(matches []models.ThreatMatch) []string {
	seen := map[string]struct{}{}
	actions := []string{}
	for _, m := range matches {
		for _, a := range recommendedActions[m.PatternType] {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			actions = append(actions, a)
		}
	}
	sort.Strings(actions)
	return actions
}
