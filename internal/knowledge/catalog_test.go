package knowledge

import (
	"context"
	"strings"
	"testing"
)

func TestLookup_MatchesTechnique(t *testing.T) {
	c := NewCatalog()

	out := c.Lookup(context.Background(), "Show me brute force attempts with failed logins", 2)

	if !strings.Contains(out, "T1110") {
		t.Fatalf("brute force technique not matched: %q", out)
	}
}

func TestLookup_RanksByOverlap(t *testing.T) {
	c := NewCatalog()

	// Three brute-force keywords, one RDP keyword: T1110 must come first.
	out := c.Lookup(context.Background(), "failed login brute attempts over rdp", 2)

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "T1110") {
		t.Fatalf("best match not first: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "T1021.001") {
		t.Fatalf("second match unexpected: %q", lines[1])
	}
}

func TestLookup_KLimitsResults(t *testing.T) {
	c := NewCatalog()

	out := c.Lookup(context.Background(), "failed login brute attempts over rdp with powershell", 1)
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("expected a single entry, got %q", out)
	}
}

func TestLookup_NoMatch(t *testing.T) {
	c := NewCatalog()

	out := c.Lookup(context.Background(), "what is the weather like today", 2)
	if out != "" {
		t.Fatalf("expected empty context, got %q", out)
	}
}

func TestLookup_PunctuationIgnored(t *testing.T) {
	c := NewCatalog()

	out := c.Lookup(context.Background(), "Ransomware? Check for shadow copy deletion!", 2)
	if !strings.Contains(out, "T1490") {
		t.Fatalf("punctuated keywords not matched: %q", out)
	}
}
