package canonicalize

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestJCSSortsKeys(t *testing.T) {
	b, err := JCS(map[string]interface{}{
		"witness": "agent:b",
		"subject": "agent:a",
		"task":    "code-review",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"subject":"agent:a","task":"code-review","witness":"agent:b"}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	b, err := JCS(map[string]string{"evidence": "https://example.com/a?b=1&c=2"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"evidence":"https://example.com/a?b=1&c=2"}` {
		t.Fatalf("ampersand must not be escaped: %s", b)
	}
}

func TestJCSRejectsNaN(t *testing.T) {
	if _, err := JCS(map[string]float64{"x": math.NaN()}); err == nil {
		t.Fatal("expected error for NaN")
	}
	if _, err := JCS([]interface{}{math.Inf(1)}); err == nil {
		t.Fatal("expected error for +Inf")
	}
}

func TestJCSHonorsStructTags(t *testing.T) {
	in := struct {
		Witness string `json:"witness"`
		Subject string `json:"subject"`
	}{Witness: "agent:w", Subject: "agent:s"}

	s, err := JCSString(in)
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"subject":"agent:s","witness":"agent:w"}` {
		t.Fatalf("unexpected canonical form: %s", s)
	}
}

func TestContentIDLength(t *testing.T) {
	id, err := ContentID(map[string]string{"a": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(id))
	}
}

// Canonicalization must be a pure function of the value: identical maps
// yield identical bytes regardless of construction order.
func TestJCSDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same value canonicalizes identically", prop.ForAll(
		func(keys []string, val string) bool {
			m1 := map[string]string{}
			m2 := map[string]string{}
			for _, k := range keys {
				m1[k] = val
			}
			for i := len(keys) - 1; i >= 0; i-- {
				m2[keys[i]] = val
			}
			b1, err1 := JCS(m1)
			b2, err2 := JCS(m2)
			return err1 == nil && err2 == nil && string(b1) == string(b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
