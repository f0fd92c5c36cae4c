package cmd

import "testing"

func TestRunCommandFlags(t *testing.T) {
	cmd := newRunCmd()
	for _, name := range []string{"continuous", "no-pull"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("run command missing --%s flag", name)
		}
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("root command missing --config flag")
	}
	want := map[string]bool{"run": false, "token": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("root command missing %q subcommand", name)
		}
	}
}

func TestTokenSetRequiresArgument(t *testing.T) {
	cmd := newTokenSetCmd()
	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("token set should require exactly one argument")
	}
	if err := cmd.Args(cmd, []string{"tok"}); err != nil {
		t.Errorf("token set should accept one argument: %v", err)
	}
}
