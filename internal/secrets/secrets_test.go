package secrets

import "testing"

func TestEnv_APIKey(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "demo-key")
	t.Setenv("RAPID_YAHOO_API_KEY", "other")

	var e Env
	if v, ok := e.APIKey("alphavantage"); !ok || v != "demo-key" {
		t.Fatalf("alphavantage key = %q ok=%v", v, ok)
	}
	// Non-alphanumeric characters in the provider id map to underscores.
	if v, ok := e.APIKey("rapid-yahoo"); !ok || v != "other" {
		t.Fatalf("rapid-yahoo key = %q ok=%v", v, ok)
	}
	if _, ok := e.APIKey("unset"); ok {
		t.Fatal("missing key must report ok=false")
	}
}

func TestEnv_BlankIsMissing(t *testing.T) {
	t.Setenv("BLANK_API_KEY", "   ")
	var e Env
	if _, ok := e.APIKey("blank"); ok {
		t.Fatal("whitespace-only key must report ok=false")
	}
}

func TestStatic_APIKey(t *testing.T) {
	s := Static{"alphavantage": "k"}
	if v, ok := s.APIKey("alphavantage"); !ok || v != "k" {
		t.Fatalf("key = %q ok=%v", v, ok)
	}
	if _, ok := s.APIKey("rapidyahoo"); ok {
		t.Fatal("missing key must report ok=false")
	}
}
