package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gobwas/glob"
)

func TestPatternOverlap(t *testing.T) {
	tests := []struct {
		p, q string
		want bool
	}{
		{"read_*", "read_file", true},
		{"read_*", "*_file", true},
		{"read_*", "write_*", false},
		{"bash:*", "bash:sh", true},
		{"bash:??", "bash:bash", false},
		{"[abc]x", "[!a]x", true},
		{"[a-c]x", "[d-f]x", false},
		{"[!a-z]", "[!0-9]", true},
		{"{read,write}_file", "write_*", true},
		{"{read,write}_file", "edit_*", false},
		{`a\*b`, "a*b", true},
		{`a\*b`, "axb", false},
		{"*", "abc", true},
		{"?", "ab", false},
		{"*a*b*", "*b*a*", true},
		{"mcp_*_read", "mcp_github_*", true},
		// The compiled matcher lets a prefix and suffix share characters.
		{"[a-b]", "b*b", true},
		{"a**a", "{a,bb}", true},
		{"ab*ba", "aba", true},
		{"b*b", "c", false},
	}

	for _, tt := range tests {
		t.Run(tt.p+"|"+tt.q, func(t *testing.T) {
			example, got := PatternOverlap(tt.p, tt.q)
			if got != tt.want {
				t.Fatalf("PatternOverlap(%q, %q) = %v, want %v", tt.p, tt.q, got, tt.want)
			}
			if !got {
				return
			}
			for _, pattern := range []string{tt.p, tt.q} {
				g := glob.MustCompile(pattern)
				if !g.Match(example) {
					t.Errorf("example %q does not match %q", example, pattern)
				}
			}
		})
	}
}

func TestPatternSpecificity(t *testing.T) {
	tests := []struct {
		pattern string
		want    Specificity
	}{
		{"read_file", Specificity{Wildcards: 0, Literals: 9}},
		{"read_*", Specificity{Wildcards: 1, Literals: 5}},
		{"**", Specificity{Wildcards: 1, Literals: 0}},
		{"bash:??", Specificity{Wildcards: 2, Literals: 5}},
		{"[a-z]x", Specificity{Wildcards: 1, Literals: 1}},
		{"{a,b}c", Specificity{Wildcards: 1, Literals: 3}},
		{`a\*`, Specificity{Wildcards: 0, Literals: 2}},
	}
	for _, tt := range tests {
		if got := PatternSpecificity(tt.pattern); got != tt.want {
			t.Errorf("PatternSpecificity(%q) = %+v, want %+v", tt.pattern, got, tt.want)
		}
	}

	tool := RuleSpecificity(NewRule("r", "bash:*", ActionDeny))
	withArg := RuleSpecificity(NewRule("r", "bash:*", ActionDeny).WithArgPattern("rm"))
	if !withArg.MoreSpecificThan(tool) {
		t.Errorf("rule with literal arg pattern should be more specific: %+v vs %+v", withArg, tool)
	}
}

func TestDetectConflicts(t *testing.T) {
	rules := []Rule{
		NewRule("deny-bash", "bash:*", ActionDeny).WithPriority(PriorityAdmin),
		NewRule("allow-reads", "read_*", ActionAllow),
		NewRule("ask-reads", "read_*", ActionAskUser),
		NewRule("deny-config", "read_config", ActionDeny),
		NewRule("allow-files", "*_file", ActionAllow),
		NewRule("allow-bash", "bash:*", ActionAllow),
		NewRule("allow-reads-too", "read_*", ActionAllow),
		NewRule("allow-writes", "write_*", ActionAllow),
	}
	SortRulesByPriority(rules)

	conflicts := DetectConflicts(rules)

	type pair struct {
		a, b string
		typ  ConflictType
	}
	var got []pair
	for _, c := range conflicts {
		got = append(got, pair{c.Rule1.Name, c.Rule2.Name, c.Type})
		if c.Index1 >= c.Index2 {
			t.Errorf("conflict %s: Index1 %d >= Index2 %d", c, c.Index1, c.Index2)
		}
		if rules[c.Index1].Name != c.Rule1.Name || rules[c.Index2].Name != c.Rule2.Name {
			t.Errorf("conflict %s: indexes do not point at its rules", c)
		}
	}

	want := []pair{
		{"allow-reads", "ask-reads", ConflictDuplicatePattern},
		{"allow-reads", "deny-config", ConflictOverlappingPatterns},
		{"ask-reads", "deny-config", ConflictOverlappingPatterns},
		{"ask-reads", "allow-files", ConflictConflictingActions},
		{"ask-reads", "allow-reads-too", ConflictDuplicatePattern},
		{"deny-config", "allow-reads-too", ConflictOverlappingPatterns},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DetectConflicts() =\n%v\nwant\n%v", got, want)
	}
}

func TestDetectConflicts_ExampleMatchesBothRules(t *testing.T) {
	rules := []Rule{
		NewRule("deny-rm", "bash:*", ActionDeny).WithArgPattern("*rm*"),
		NewRule("allow-ls", "bash:*", ActionAllow).WithArgPattern("ls *"),
	}

	conflicts := DetectConflicts(rules)
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() returned %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	for _, r := range rules {
		ok, err := r.Matches(c.ExampleTool, c.ExampleArgs)
		if err != nil || !ok {
			t.Errorf("rule %q does not match example %q %v (err %v)", r.Name, c.ExampleTool, c.ExampleArgs, err)
		}
	}
}

func TestDetectConflicts_IgnoresDifferentPriorityAndInvalidPatterns(t *testing.T) {
	rules := []Rule{
		NewRule("admin-deny", "bash:*", ActionDeny).WithPriority(PriorityAdmin),
		NewRule("user-allow", "bash:*", ActionAllow),
		NewRule("broken", "bash:[", ActionDeny),
		NewRule("same-action", "bash:sh", ActionAllow),
	}
	SortRulesByPriority(rules)

	if got := DetectConflicts(rules); len(got) != 0 {
		t.Errorf("DetectConflicts() = %v, want none", got)
	}
}

func TestResolutionStrategy_Prefer(t *testing.T) {
	broad := NewRule("broad", "read_*", ActionAllow)
	narrow := NewRule("narrow", "read_config", ActionDeny)
	admin := NewRule("admin", "read_*", ActionDeny).WithPriority(PriorityAdmin)

	tests := []struct {
		name   string
		s      ResolutionStrategy
		a      Rule
		ia     int
		b      Rule
		ib     int
		keepsA bool
	}{
		{"highest priority wins", KeepHighestPriority, broad, 0, admin, 1, false},
		{"highest priority tie keeps first", KeepHighestPriority, broad, 0, narrow, 1, true},
		{"first declared", KeepFirstDeclared, admin, 1, broad, 0, false},
		{"most specific", KeepMostSpecificPattern, broad, 0, narrow, 1, false},
		{"most specific reversed", KeepMostSpecificPattern, narrow, 1, broad, 0, true},
		{"most specific tie keeps first", KeepMostSpecificPattern, broad, 0, NewRule("b2", "edit_*", ActionDeny), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Prefer(tt.a, tt.ia, tt.b, tt.ib); got != tt.keepsA {
				t.Errorf("Prefer() = %v, want %v", got, tt.keepsA)
			}
			if got := tt.s.Prefer(tt.b, tt.ib, tt.a, tt.ia); got == tt.keepsA {
				t.Errorf("Prefer() is not antisymmetric")
			}
		})
	}
}

func TestParseResolutionStrategy(t *testing.T) {
	for _, s := range []ResolutionStrategy{KeepHighestPriority, KeepFirstDeclared, KeepMostSpecificPattern} {
		got, err := ParseResolutionStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseResolutionStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseResolutionStrategy("coin-flip"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseResolutionStrategy(coin-flip) error = %v, want ErrUnknownStrategy", err)
	}
}

func conflictingRules() []Rule {
	return []Rule{
		NewRule("allow-reads", "read_*", ActionAllow),
		NewRule("ask-reads", "read_*", ActionAskUser),
		NewRule("deny-config", "read_config", ActionDeny),
		NewRule("allow-files", "*_file", ActionAllow),
		NewRule("deny-bash", "bash:*", ActionDeny).WithPriority(PriorityAdmin),
		NewRule("allow-bash", "bash:*", ActionAllow),
	}
}

func TestEngine_AutoResolveConflicts(t *testing.T) {
	e, err := New(PolicyConfig{ApprovalMode: ModeAsk, Rules: conflictingRules()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	removed := e.AutoResolveConflicts()
	want := []string{"ask-reads", "deny-config"}
	if !reflect.DeepEqual(removed, want) {
		t.Errorf("AutoResolveConflicts() = %v, want %v", removed, want)
	}

	if c := e.DetectConflicts(); len(c) != 0 {
		t.Errorf("DetectConflicts() after resolve = %v, want none", c)
	}
	if again := e.AutoResolveConflicts(); len(again) != 0 {
		t.Errorf("second AutoResolveConflicts() = %v, want none", again)
	}
	if e.RuleCount() != 4 {
		t.Errorf("RuleCount() = %d, want 4", e.RuleCount())
	}
}

func TestEngine_ResolveConflictsStrategies(t *testing.T) {
	tests := []struct {
		strategy ResolutionStrategy
		want     []string
	}{
		{KeepHighestPriority, []string{"ask-reads", "deny-config"}},
		{KeepFirstDeclared, []string{"ask-reads", "deny-config"}},
		{KeepMostSpecificPattern, []string{"ask-reads", "allow-reads"}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			e, err := New(PolicyConfig{ApprovalMode: ModeAsk, Rules: conflictingRules()})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			removed, err := e.ResolveConflicts(tt.strategy)
			if err != nil {
				t.Fatalf("ResolveConflicts() error = %v", err)
			}
			if !reflect.DeepEqual(removed, tt.want) {
				t.Errorf("ResolveConflicts() = %v, want %v", removed, tt.want)
			}
			if c := e.DetectConflicts(); len(c) != 0 {
				t.Errorf("conflicts remain: %v", c)
			}
			again, err := e.ResolveConflicts(tt.strategy)
			if err != nil || len(again) != 0 {
				t.Errorf("second ResolveConflicts() = %v, %v; want none", again, err)
			}
		})
	}

	e, _ := New(PolicyConfig{})
	if _, err := e.ResolveConflicts(ResolutionStrategy(42)); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ResolveConflicts(42) error = %v, want ErrUnknownStrategy", err)
	}
}
