package log

import "testing"

func TestParseLevel(t *testing.T) {
	type spec struct {
		name     string
		expLevel Level
		expErr   bool
	}
	specs := []spec{
		{"TRACE", Trace, false},
		{"debug", Debug, false},
		{"INFO", Info, false},
		{"", Info, false},
		{"warn", Warning, false},
		{"WARNING", Warning, false},
		{"ERROR", Error, false},
		{"CRITICAL", Critical, false},
		{"off", Off, false},
		{"bogus", Info, true},
	}

	for index, s := range specs {
		level, err := ParseLevel(s.name)
		if s.expErr && err == nil {
			t.Fatalf("[spec %d] expected an error for %q", index, s.name)
		}
		if !s.expErr && err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", index, err)
		}
		if level != s.expLevel {
			t.Fatalf("[spec %d] expected level %d; got %d", index, s.expLevel, level)
		}
	}
}

func TestConfigureOff(t *testing.T) {
	if err := Configure(Config{ToStdout: true, Level: "OFF"}); err != nil {
		t.Fatal(err)
	}
	// Restore the default sink for other tests.
	if err := Configure(Config{ToStdout: true, Level: "INFO"}); err != nil {
		t.Fatal(err)
	}
}
