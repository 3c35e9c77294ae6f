// Package command is the dispatch pipeline: parse, registry lookup,
// context construction, safe execution, and room-event fan-out to
// observers.
package command

import (
	"sort"
	"strings"
)

// Command is one global driver command registered at startup.
type Command struct {
	Name     string
	Aliases  []string
	Category string
	Usage    string
	Desc     string
	Wizard   bool
	Run      func(ctx *Context, args []string) error
}

// Registry resolves command words. Precedence against local commands is
// the dispatcher's job; the registry only answers for globals.
type Registry struct {
	byName  map[string]*Command
	byAlias map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Command),
		byAlias: make(map[string]*Command),
	}
}

func (r *Registry) Register(cmd *Command) {
	name := strings.ToLower(cmd.Name)
	r.byName[name] = cmd
	for _, a := range cmd.Aliases {
		r.byAlias[strings.ToLower(a)] = cmd
	}
}

// Lookup resolves a word: exact name first, then alias. Wizard-only
// commands are invisible to non-wizards; the miss is indistinguishable
// from an unknown command.
func (r *Registry) Lookup(word string, wizard bool) (*Command, bool) {
	word = strings.ToLower(word)
	cmd, ok := r.byName[word]
	if !ok {
		cmd, ok = r.byAlias[word]
	}
	if !ok || (cmd.Wizard && !wizard) {
		return nil, false
	}
	return cmd, true
}

// Visible lists commands the caller may see, sorted by category then name.
// The help command renders this.
func (r *Registry) Visible(wizard bool) []*Command {
	var out []*Command
	for _, cmd := range r.byName {
		if cmd.Wizard && !wizard {
			continue
		}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}
