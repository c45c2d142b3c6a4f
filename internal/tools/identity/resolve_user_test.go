package identity

import (
	"encoding/json"
	"testing"

	"github.com/coredispatch/agentcore/internal/agent"
)

type stubResolver struct {
	profile Profile
	found   bool
	err     error
}

func (s stubResolver) Lookup(userID string) (Profile, bool, error) {
	return s.profile, s.found, s.err
}

func TestExtractUserIDFormats(t *testing.T) {
	cases := map[string]string{
		"<@123456789012345678>":  "123456789012345678",
		"<@!123456789012345678>": "123456789012345678",
		"123456789012345678":     "123456789012345678",
	}
	for mention, want := range cases {
		got, ok := extractUserID(mention)
		if !ok || got != want {
			t.Errorf("extractUserID(%q) = %q, %v; want %q, true", mention, got, ok, want)
		}
	}
	for _, invalid := range []string{"invalid", "@username", ""} {
		if _, ok := extractUserID(invalid); ok {
			t.Errorf("extractUserID(%q) should not match", invalid)
		}
	}
}

func TestExecuteResolvesRegisteredUser(t *testing.T) {
	tool := New(stubResolver{profile: Profile{DisplayName: "ada", PublicAddress: "0xabc", Registered: true}, found: true})
	raw, _ := json.Marshal(resolveArgs{UserMention: "<@42>"})
	result, err := tool.Execute(raw, agent.ToolContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded resolveResult
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !decoded.Registered || decoded.PublicAddress != "0xabc" {
		t.Fatalf("unexpected result: %+v", decoded)
	}
}

func TestExecuteRejectsInvalidMention(t *testing.T) {
	tool := New(stubResolver{})
	raw, _ := json.Marshal(resolveArgs{UserMention: "not-a-mention"})
	_, err := tool.Execute(raw, agent.ToolContext{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
