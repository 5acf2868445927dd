package main

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRootAcceptsDomainArguments(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "domains and flags", args: []string{"example.com", "-v"}, want: "domaincheck"},
		{name: "several domains", args: []string{"example.com", "example.org", "-o", "out.txt"}, want: "domaincheck"},
		{name: "serve subcommand", args: []string{"serve"}, want: "serve"},
		{name: "kill with pattern", args: []string{"kill", "worker", "--all"}, want: "kill"},
		{name: "version subcommand", args: []string{"version"}, want: "version"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tc.args)
			assert.NilError(t, err)
			assert.Equal(t, cmd.Name(), tc.want)
		})
	}
}

func TestRootArgsValidation(t *testing.T) {
	cmd, rest, err := rootCmd.Find([]string{"example.com", "-v"})
	assert.NilError(t, err)
	assert.Assert(t, cmd == rootCmd)
	assert.NilError(t, cmd.ValidateArgs([]string{"example.com"}))
	assert.DeepEqual(t, rest, []string{"example.com", "-v"})
}
