// Package configfile is the reference implementation of the external
// configuration-file parser spec.md §1 deliberately keeps out of core's
// scope ("only the node tree it produces is consumed"): it reads a YAML
// document describing a command/group tree and named scripts, and
// produces/consumes a core.ConfigTree, grounded on the orchestration
// package's yaml.v3-based workflow-definition loader in the teacher pack.
package configfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetsheriff/sheriff/core"
)

// document is the on-disk YAML shape. Field names are lowercase to match
// the original tool's config file conventions (spec.md §9).
type document struct {
	Group   groupDoc   `yaml:"group"`
	Scripts []scriptDoc `yaml:"scripts"`
}

type groupDoc struct {
	Name     string      `yaml:"name,omitempty"`
	Groups   []groupDoc  `yaml:"groups,omitempty"`
	Commands []commandDoc `yaml:"commands,omitempty"`
}

type commandDoc struct {
	Host        string `yaml:"host"`
	Exec        string `yaml:"exec"`
	Nickname    string `yaml:"nickname"`
	AutoRespawn bool   `yaml:"auto_respawn,omitempty"`
}

type scriptDoc struct {
	Name    string      `yaml:"name"`
	Actions []actionDoc `yaml:"actions"`
}

// actionDoc mirrors core.Action with omitempty tags so a saved file stays
// readable: only the fields relevant to an action's kind are emitted.
type actionDoc struct {
	Kind       string `yaml:"kind"`
	IdentType  string `yaml:"ident_type,omitempty"`
	Ident      string `yaml:"ident,omitempty"`
	WaitFor    string `yaml:"wait_for,omitempty"`
	DelayMS    int    `yaml:"delay_ms,omitempty"`
	ScriptName string `yaml:"script_name,omitempty"`
}

// Load reads and parses a YAML configuration file into a core.ConfigTree
// suitable for Sheriff.LoadConfig.
func Load(path string) (*core.ConfigTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configfile: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configfile: parsing %s: %w: %v", path, core.ErrInvalidConfiguration, err)
	}

	tree := &core.ConfigTree{Root: toGroupNode(doc.Group)}
	for _, sd := range doc.Scripts {
		actions, err := toActions(sd.Actions)
		if err != nil {
			return nil, fmt.Errorf("configfile: script %q: %w", sd.Name, err)
		}
		tree.Scripts = append(tree.Scripts, &core.ConfigScriptNode{Name: sd.Name, Actions: actions})
	}
	return tree, nil
}

// Save renders a core.ConfigTree (typically from Sheriff.SaveConfig) to a
// YAML file at path.
func Save(path string, tree *core.ConfigTree) error {
	doc := document{}
	if tree.Root != nil {
		doc.Group = fromGroupNode(tree.Root)
	}
	for _, s := range tree.Scripts {
		doc.Scripts = append(doc.Scripts, scriptDoc{Name: s.Name, Actions: fromActions(s.Actions)})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("configfile: encoding config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("configfile: writing %s: %w", path, err)
	}
	return nil
}

func toGroupNode(g groupDoc) *core.ConfigGroupNode {
	node := &core.ConfigGroupNode{Name: g.Name}
	for _, c := range g.Commands {
		node.Commands = append(node.Commands, &core.ConfigCommandNode{
			Host: c.Host, Exec: c.Exec, Nickname: c.Nickname, AutoRespawn: c.AutoRespawn,
		})
	}
	for _, child := range g.Groups {
		node.Groups = append(node.Groups, toGroupNode(child))
	}
	return node
}

func fromGroupNode(g *core.ConfigGroupNode) groupDoc {
	doc := groupDoc{Name: g.Name}
	for _, c := range g.Commands {
		doc.Commands = append(doc.Commands, commandDoc{
			Host: c.Host, Exec: c.Exec, Nickname: c.Nickname, AutoRespawn: c.AutoRespawn,
		})
	}
	for _, child := range g.Groups {
		doc.Groups = append(doc.Groups, fromGroupNode(child))
	}
	return doc
}

func toActions(docs []actionDoc) ([]core.Action, error) {
	actions := make([]core.Action, 0, len(docs))
	for _, d := range docs {
		a := core.Action{
			Kind:       core.ActionKind(d.Kind),
			IdentType:  core.IdentType(d.IdentType),
			Ident:      d.Ident,
			WaitFor:    core.WaitStatus(d.WaitFor),
			DelayMS:    d.DelayMS,
			ScriptName: d.ScriptName,
		}
		switch a.Kind {
		case core.ActionStart, core.ActionStop, core.ActionRestart, core.ActionWaitStatus,
			core.ActionWaitMs, core.ActionRunScript:
		default:
			return nil, fmt.Errorf("unknown action kind %q: %w", d.Kind, core.ErrInvalidConfiguration)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func fromActions(actions []core.Action) []actionDoc {
	docs := make([]actionDoc, 0, len(actions))
	for _, a := range actions {
		docs = append(docs, actionDoc{
			Kind:       string(a.Kind),
			IdentType:  string(a.IdentType),
			Ident:      a.Ident,
			WaitFor:    string(a.WaitFor),
			DelayMS:    a.DelayMS,
			ScriptName: a.ScriptName,
		})
	}
	return docs
}
