// Package schema serializes the CLI's command tree so an agent host can
// discover the harness surface without scraping help text.
package schema

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
)

type Command struct {
	Path     string    `json:"path"`
	Use      string    `json:"use"`
	Short    string    `json:"short"`
	Example  string    `json:"example,omitempty"`
	Flags    []Flag    `json:"flags,omitempty"`
	Commands []Command `json:"commands,omitempty"`
}

type Flag struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
}

// Describe resolves commandPath under root and serializes that subtree. An
// empty path describes the whole tree.
func Describe(root *cobra.Command, commandPath string) (Command, error) {
	cmd := root
	for _, part := range strings.Fields(strings.TrimSpace(commandPath)) {
		next := findCommand(cmd, part)
		if next == nil {
			return Command{}, agenterr.New(agenterr.CodeUsage, "command not found: "+commandPath)
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func findCommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name {
			return sub
		}
		for _, alias := range sub.Aliases {
			if alias == name {
				return sub
			}
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) Command {
	s := Command{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Example: cmd.Example,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" {
			continue
		}
		s.Commands = append(s.Commands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []Flag {
	var items []Flag
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, Flag{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Usage:   f.Usage,
			Default: f.DefValue,
		})
	})
	return items
}
