package esrt

import "testing"

func TestNextVersions(t *testing.T) {
	cases := []struct {
		name    string
		current string
		n       int
		want    []string
	}{
		{"first append", InitialVersion, 1, []string{"1-0"}},
		{"batch of three", "1-0", 3, []string{"2-0", "2-1", "2-2"}},
		{"zero events", "4-2", 0, []string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := NextVersions(c.current, c.n)
			if err != nil {
				t.Fatalf("NextVersions: %v", err)
			}
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestNextVersions_Malformed(t *testing.T) {
	if _, err := NextVersions("not-a-version", 1); err == nil {
		t.Fatal("expected error for malformed current version")
	}
}

func TestVersionAfter(t *testing.T) {
	cases := []struct {
		v, after string
		want     bool
	}{
		{"1-0", "0-0", true},
		{"2-0", "1-5", true},
		{"1-1", "1-0", true},
		{"1-0", "1-1", false},
		{"1-0", "1-0", false},
	}
	for _, c := range cases {
		got, err := VersionAfter(c.v, c.after)
		if err != nil {
			t.Fatalf("VersionAfter(%q, %q): %v", c.v, c.after, err)
		}
		if got != c.want {
			t.Fatalf("VersionAfter(%q, %q) = %v, want %v", c.v, c.after, got, c.want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1-0", "1-0", 0},
		{"1-0", "1-1", -1},
		{"2-0", "1-9", 1},
	}
	for _, c := range cases {
		got, err := CompareVersions(c.a, c.b)
		if err != nil {
			t.Fatalf("CompareVersions(%q, %q): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("CompareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
