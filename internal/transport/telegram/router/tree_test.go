package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "plain", raw: "/mode forward", want: []string{"/mode", "forward"}},
		{name: "collapsed whitespace", raw: "  /attach \t -1001234567  ", want: []string{"/attach", "-1001234567"}},
		{name: "double quotes", raw: `/say "hello there" now`, want: []string{"/say", "hello there", "now"}},
		{name: "single quotes", raw: "/say 'a b'", want: []string{"/say", "a b"}},
		{name: "escaped quote", raw: `/say \"x`, want: []string{"/say", `"x`}},
		{name: "empty", raw: "   ", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tokenizeCommandLine(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tokenizeCommandLine(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	pos, flags, bools := parseFlags([]string{"a", "--key=v", "--name", "bob", "--dry", "-x", "1", "-ab"})
	if !reflect.DeepEqual(pos, []string{"a"}) {
		t.Fatalf("pos = %#v", pos)
	}
	if flags["key"] != "v" || flags["name"] != "bob" || flags["x"] != "1" {
		t.Fatalf("flags = %#v", flags)
	}
	if !bools["dry"] || !bools["a"] || !bools["b"] {
		t.Fatalf("bools = %#v", bools)
	}
}

// Negative chat IDs look like flag clusters to parseFlags. Handlers that
// accept them read RawArgs instead; this pins the behavior they work around.
func TestParseFlagsEatsNegativeIDs(t *testing.T) {
	t.Parallel()

	pos, _, bools := parseFlags([]string{"-1001234567"})
	if len(pos) != 0 {
		t.Fatalf("negative id should not be positional, pos = %#v", pos)
	}
	if !bools["1"] || !bools["0"] {
		t.Fatalf("expected digit bools, got %#v", bools)
	}
}

func TestCommandTreeTraversal(t *testing.T) {
	t.Parallel()

	root := newRoot()
	attach := Command{Route: "attach"}
	attachButtons := Command{Route: "attach buttons"}
	root.add(splitRoute(attach.Route), attach)
	root.add(splitRoute(attachButtons.Route), attachButtons)

	leaf := root.find([]string{"attach"})
	if leaf == nil || leaf.cmd == nil || leaf.cmd.Route != "attach" {
		t.Fatalf("attach leaf = %+v", leaf)
	}

	// The same node holds a handler and a child.
	sub, ok := leaf.child("buttons")
	if !ok || sub.cmd == nil || sub.cmd.Route != "attach buttons" {
		t.Fatalf("attach buttons leaf = %+v ok=%v", sub, ok)
	}

	if got := root.find([]string{"attach", "buttons"}); got != sub {
		t.Fatal("find should reach the subcommand node")
	}
	if got := root.find([]string{"nope"}); got != nil {
		t.Fatalf("unknown path should be nil, got %+v", got)
	}
}

func TestTelegramCommandNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		route []string
		want  string
		ok    bool
	}{
		{name: "single", route: []string{"status"}, want: "status", ok: true},
		{name: "multi token", route: []string{"clear", "template"}, want: "clear_template", ok: true},
		{name: "dashes", route: []string{"Attach-Buttons"}, want: "attach_buttons", ok: true},
		{name: "leading digit", route: []string{"9lives"}, want: "cmd_9lives", ok: true},
		{name: "garbage", route: []string{"!!!"}, want: "", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := telegramCommandNameFromRoute(tt.route)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("telegramCommandNameFromRoute(%v) = %q/%v, want %q/%v", tt.route, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := newReqID()
		if id == "" {
			t.Fatal("empty request id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = struct{}{}
	}
}
