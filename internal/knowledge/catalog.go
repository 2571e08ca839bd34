// Package knowledge provides attack-technique context for query generation.
// The catalog is static; entries are matched against the analyst question by
// keyword overlap and the best matches are rendered into the generator prompt.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Technique is one catalog entry.
type Technique struct {
	ID       string
	Name     string
	Guidance string
	keywords []string
}

// Catalog is an in-memory technique lookup.
type Catalog struct {
	entries []Technique
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: builtin}
}

// Lookup returns prompt context for the best-matching techniques, or an
// empty string when nothing in the catalog relates to the question.
func (c *Catalog) Lookup(_ context.Context, question string, k int) string {
	if k <= 0 {
		k = 2
	}
	terms := tokenize(question)

	type scored struct {
		t     Technique
		score int
	}
	var hits []scored
	for _, e := range c.entries {
		s := 0
		for _, kw := range e.keywords {
			if _, ok := terms[kw]; ok {
				s++
			}
		}
		if s > 0 {
			hits = append(hits, scored{t: e, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	var b strings.Builder
	for _, h := range hits {
		b.WriteString(h.t.ID)
		b.WriteString(" ")
		b.WriteString(h.t.Name)
		b.WriteString(": ")
		b.WriteString(h.t.Guidance)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(w, ".,?!:;\"'")] = struct{}{}
	}
	return out
}

var builtin = []Technique{
	{
		ID:       "T1110",
		Name:     "Brute Force",
		Guidance: "Repeated logon-failure events from a single source.ip against one or many user.name values. Aggregate on source.ip and look for counts far above baseline.",
		keywords: []string{"brute", "force", "password", "failed", "logins", "login", "logon", "spray", "spraying"},
	},
	{
		ID:       "T1021.001",
		Name:     "Remote Desktop Protocol",
		Guidance: "Lateral movement over destination.port 3389. Successful logons following a burst of failures on the same host are the strongest signal.",
		keywords: []string{"rdp", "remote", "desktop", "3389", "lateral"},
	},
	{
		ID:       "T1059.001",
		Name:     "PowerShell",
		Guidance: "Suspicious process.name powershell.exe with encoded or download-cradle arguments in process.command_line.",
		keywords: []string{"powershell", "encoded", "script", "command"},
	},
	{
		ID:       "T1048",
		Name:     "Exfiltration Over Alternative Protocol",
		Guidance: "Large outbound network.bytes to rare external destination.ip values, especially over DNS or non-standard ports.",
		keywords: []string{"exfiltration", "exfil", "outbound", "transfer", "upload", "dns"},
	},
	{
		ID:       "T1078",
		Name:     "Valid Accounts",
		Guidance: "Logons at unusual hours or from unusual source.ip geographies for a given user.name. Compare against the account's recent history.",
		keywords: []string{"account", "compromised", "credential", "credentials", "unusual", "hours"},
	},
	{
		ID:       "T1490",
		Name:     "Inhibit System Recovery",
		Guidance: "vssadmin, wbadmin, or bcdedit in process.command_line deleting shadow copies. Common immediately before ransomware detonation.",
		keywords: []string{"ransomware", "shadow", "vssadmin", "backup", "recovery", "encrypted"},
	},
}
