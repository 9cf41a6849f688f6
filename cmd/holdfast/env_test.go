package main

import "testing"

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("HOLDFAST_TEST_STRING", "")
	if got := envOrDefault("HOLDFAST_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault() = %q, want %q", got, "fallback")
	}

	t.Setenv("HOLDFAST_TEST_STRING", "set")
	if got := envOrDefault("HOLDFAST_TEST_STRING", "fallback"); got != "set" {
		t.Errorf("envOrDefault() = %q, want %q", got, "set")
	}
}

func TestEnvBoolOrDefault(t *testing.T) {
	t.Setenv("HOLDFAST_TEST_BOOL", "")
	if got := envBoolOrDefault("HOLDFAST_TEST_BOOL", false); got != false {
		t.Error("envBoolOrDefault() with unset env should return fallback")
	}

	t.Setenv("HOLDFAST_TEST_BOOL", "true")
	if got := envBoolOrDefault("HOLDFAST_TEST_BOOL", false); got != true {
		t.Error("envBoolOrDefault() with \"true\" should return true")
	}

	t.Setenv("HOLDFAST_TEST_BOOL", "not-a-bool")
	if got := envBoolOrDefault("HOLDFAST_TEST_BOOL", true); got != true {
		t.Error("envBoolOrDefault() with unparseable value should return fallback")
	}
}

func TestEnvIntOrDefault(t *testing.T) {
	t.Setenv("HOLDFAST_TEST_INT", "")
	if got := envIntOrDefault("HOLDFAST_TEST_INT", 7); got != 7 {
		t.Errorf("envIntOrDefault() = %d, want 7", got)
	}

	t.Setenv("HOLDFAST_TEST_INT", "14")
	if got := envIntOrDefault("HOLDFAST_TEST_INT", 7); got != 14 {
		t.Errorf("envIntOrDefault() = %d, want 14", got)
	}
}

func TestParseVerboseEnv(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"2", 2, false},
		{"vv", 2, false},
		{"vvv", 3, false},
		{"", 0, false},
		{"xx", 0, true},
	}
	for _, c := range cases {
		got, err := parseVerboseEnv(c.raw)
		if (err != nil) != c.wantErr {
			t.Errorf("parseVerboseEnv(%q) error = %v, wantErr %v", c.raw, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("parseVerboseEnv(%q) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestEnvStringSlice(t *testing.T) {
	t.Setenv("HOLDFAST_TEST_SLICE", "")
	if got := envStringSlice("HOLDFAST_TEST_SLICE"); got != nil {
		t.Errorf("envStringSlice() with unset env = %v, want nil", got)
	}

	t.Setenv("HOLDFAST_TEST_SLICE", "a,b,c")
	got := envStringSlice("HOLDFAST_TEST_SLICE")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("envStringSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envStringSlice()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
