package util

import "testing"

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SA_FLOAT", "abc")
	t.Setenv("SA_BOOL", "true")
	t.Setenv("SA_LIST", " BTC/USD, ,ETH/USD ")
	t.Setenv("SA_CHATS", "12,x,34")

	if got := EnvFloat("SA_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("expected fallback 1.5, got %v", got)
	}
	if !EnvBool("SA_BOOL", false) {
		t.Fatalf("expected true")
	}
	list := EnvList("SA_LIST", nil)
	if len(list) != 2 || list[0] != "BTC/USD" || list[1] != "ETH/USD" {
		t.Fatalf("unexpected list %v", list)
	}
	chats := EnvInt64List("SA_CHATS")
	if len(chats) != 2 || chats[0] != 12 || chats[1] != 34 {
		t.Fatalf("unexpected chats %v", chats)
	}
	if got := EnvString("SA_UNSET_KEY", "def"); got != "def" {
		t.Fatalf("expected def, got %s", got)
	}
}
