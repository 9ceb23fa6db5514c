package config

import "testing"

func validConfig() BackendConfig {
	return BackendConfig{
		Addr:                 ":5000",
		MaxRequestsPerMinute: 1000,
		LogTailLines:         100,
		LogFormat:            "json",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BackendConfig)
	}{
		{"zero rate limit", func(c *BackendConfig) { c.MaxRequestsPerMinute = 0 }},
		{"rate limit over ceiling", func(c *BackendConfig) { c.MaxRequestsPerMinute = 10001 }},
		{"zero tail lines", func(c *BackendConfig) { c.LogTailLines = 0 }},
		{"empty addr", func(c *BackendConfig) { c.Addr = "" }},
		{"unknown log format", func(c *BackendConfig) { c.LogFormat = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("DWI_TEST_INT", "not-a-number")
	if got := GetInt("DWI_TEST_INT", 42); got != 42 {
		t.Fatalf("GetInt = %d, want fallback 42", got)
	}
	t.Setenv("DWI_TEST_INT", "7")
	if got := GetInt("DWI_TEST_INT", 42); got != 7 {
		t.Fatalf("GetInt = %d, want 7", got)
	}
}
