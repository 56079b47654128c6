package plugin

import (
	"encoding/json"
	"testing"
)

func TestPermissionOrdering(t *testing.T) {
	t.Parallel()

	order := []Permission{Anyone(), Custom(0), Custom(5), Admin()}
	for i := range order {
		for j := range order {
			got := order[i].Compare(order[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Fatalf("%s.Compare(%s) = %d, want %d", order[i], order[j], got, want)
			}
		}
	}

	required := Custom(5)
	if !Custom(3).Less(required) {
		t.Fatalf("custom(3) must be below custom(5)")
	}
	if Admin().Less(required) {
		t.Fatalf("admin must satisfy custom(5)")
	}
}

func TestParsePermission(t *testing.T) {
	t.Parallel()

	cases := map[string]Permission{
		"anyone":     Anyone(),
		" ADMIN ":    Admin(),
		"custom(3)":  Custom(3),
		"custom:12":  Custom(12),
		"7":          Custom(7),
		"custom(-1)": Custom(-1),
	}
	for in, want := range cases {
		got, err := ParsePermission(in)
		if err != nil {
			t.Fatalf("ParsePermission(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ParsePermission(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParsePermission("root"); err == nil {
		t.Fatalf("ParsePermission(root) error = nil")
	}
}

func TestPermissionJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Custom(4))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"kind":"custom","lv":4}` {
		t.Fatalf("Marshal() = %s", raw)
	}

	for in, want := range map[string]Permission{
		`{"kind":"admin"}`:         Admin(),
		`{"kind":"custom","lv":4}`: Custom(4),
		`"anyone"`:                 Anyone(),
	} {
		var got Permission
		if err := json.Unmarshal([]byte(in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("Unmarshal(%s) = %v, want %v", in, got, want)
		}
	}
	var bad Permission
	if err := json.Unmarshal([]byte(`{"kind":"root"}`), &bad); err == nil {
		t.Fatalf("Unmarshal(root) error = nil")
	}
}
