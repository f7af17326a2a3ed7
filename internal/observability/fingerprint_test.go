package observability

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM users.u", "select * from users.u"},
		{"  select   *\n\tFROM users.u ;", "select * from users.u"},
		{"SELECT * FROM t.x WHERE name = 'Alice  SMITH'", "select * from t.x where name = 'Alice  SMITH'"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("SELECT * FROM postgres.users WHERE age > 30")
	b := Fingerprint("select *   from postgres.users\nwhere AGE > 30;")
	if a != b {
		t.Errorf("expected equal fingerprints, got %s and %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex digits, got %q", a)
	}

	c := Fingerprint("SELECT * FROM postgres.users WHERE name = 'Bob'")
	d := Fingerprint("SELECT * FROM postgres.users WHERE name = 'BOB'")
	if c == d {
		t.Error("literal case must change the fingerprint")
	}
}

func TestProperty_NormalizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	word := gen.OneGenOf(
		gen.AlphaString(),
		gen.OneConstOf("SELECT", "from", " ", "\t", "\n", "'Quoted Text'", "*", ";"),
	)

	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(parts []string) bool {
			sql := strings.Join(parts, " ")
			once := Normalize(sql)
			return Normalize(once) == once
		},
		gen.SliceOf(word),
	))

	properties.Property("whitespace runs do not change the fingerprint", prop.ForAll(
		func(parts []string) bool {
			return Fingerprint(strings.Join(parts, " ")) == Fingerprint(strings.Join(parts, " \n\t "))
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
