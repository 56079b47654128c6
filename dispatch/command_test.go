package dispatch

import "testing"

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text   string
		prefix string
		ok     bool
		want   Command
	}{
		{"/help", "/", true, Command{Name: "help"}},
		{"/help@mybot", "/", true, Command{Name: "help", Addressee: "mybot"}},
		{"/help@mybot  pick  ", "/", true, Command{Name: "help", Addressee: "mybot", Args: "pick"}},
		{"!perm 42 admin", "!", true, Command{Name: "perm", Args: "42 admin"}},
		{"!perm\n42", "!", true, Command{Name: "perm", Args: "42"}},
		{"hello /help", "/", false, Command{}},
		{"!help", "/", false, Command{}},
		{"anything", "", false, Command{}},
		{"!", "!", true, Command{}},
	}
	for _, tc := range cases {
		got, ok := ParseCommand(tc.text, tc.prefix)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseCommand(%q, %q) = %+v, %v; want %+v, %v", tc.text, tc.prefix, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSameAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"mybot", "mybot", true},
		{"MyBot", "@mybot", true},
		{"@mybot", "mybot", true},
		{"otherbot", "mybot", false},
		{"mybot", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := sameAddress(tc.a, tc.b); got != tc.want {
			t.Fatalf("sameAddress(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
