// Package agent wires actions and context providers into a conversational
// plugin and routes incoming messages to the right handler.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyphalabs/evm-agent/internal/actions"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/model"
)

// Provider contributes context ahead of action handling, such as the wallet's
// address and balance, so handlers and the extractor see current state.
type Provider interface {
	Name() string
	Provide(ctx context.Context) (string, error)
}

// Plugin bundles the EVM actions and providers under one name.
type Plugin struct {
	Name      string
	Actions   []actions.Action
	Providers []Provider
}

// NewPlugin assembles the full action set.
func NewPlugin(providers ...Provider) Plugin {
	return Plugin{
		Name:      "evm",
		Actions:   actions.All(),
		Providers: providers,
	}
}

// ActionInfos lists the plugin's actions for discovery.
func (p Plugin) ActionInfos() []model.ActionInfo {
	infos := make([]model.ActionInfo, 0, len(p.Actions))
	for _, action := range p.Actions {
		infos = append(infos, action.Info())
	}
	return infos
}

// Reply is the runtime's answer to one message.
type Reply struct {
	Action string
	Text   string
	Data   any
	Tx     *model.TransactionRecord
}

// Runtime matches messages against the plugin's actions and runs them.
type Runtime struct {
	plugin Plugin
	deps   actions.Deps
}

func NewRuntime(plugin Plugin, deps actions.Deps) *Runtime {
	return &Runtime{plugin: plugin, deps: deps}
}

// HandleMessage runs the conversational loop for one message: gather provider
// context, match an action, extract parameters, execute, and reply. A message
// matching no action returns a usage error naming the available actions.
func (r *Runtime) HandleMessage(ctx context.Context, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, agenterr.New(agenterr.CodeUsage, "empty message")
	}

	conversation := message
	for _, provider := range r.plugin.Providers {
		contributed, err := provider.Provide(ctx)
		if err != nil {
			// Context providers are best-effort; a failing one must not
			// block the action.
			continue
		}
		if strings.TrimSpace(contributed) != "" {
			conversation = contributed + "\n\n" + conversation
		}
	}

	action, ok := r.match(message)
	if !ok {
		names := make([]string, 0, len(r.plugin.Actions))
		for _, a := range r.plugin.Actions {
			names = append(names, a.Name)
		}
		return Reply{}, agenterr.New(agenterr.CodeUsage,
			fmt.Sprintf("no action matches the request; available: %s", strings.Join(names, ", ")))
	}

	result, err := action.Handler(ctx, r.deps, conversation)
	if err != nil {
		return Reply{Action: action.Name}, agenterr.WithPrefix(action.Name+" failed", err)
	}
	return Reply{Action: action.Name, Text: result.Text, Data: result.Data, Tx: result.Tx}, nil
}

// match returns the first action whose triggers appear in the message.
// Registration order is the priority order.
func (r *Runtime) match(message string) (actions.Action, bool) {
	for _, action := range r.plugin.Actions {
		if action.Match(message) {
			return action, true
		}
	}
	return actions.Action{}, false
}
