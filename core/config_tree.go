package core

import "strings"

// ConfigCommandNode is one command entry in a parsed configuration tree
// (spec.md §6), carrying exec, host, nickname and auto_respawn. Its group
// is not a field: it is the path of the ConfigGroupNode chain the command
// sits under.
type ConfigCommandNode struct {
	Host        string
	Exec        string
	Nickname    string
	AutoRespawn bool
}

// ConfigGroupNode is one node of the group tree a configuration-file
// parser produces (spec.md §1: "only the node tree it produces is
// consumed"). The root group has an empty Name.
type ConfigGroupNode struct {
	Name     string
	Groups   []*ConfigGroupNode
	Commands []*ConfigCommandNode
}

// ConfigScriptNode is a top-level named script (spec.md §6).
type ConfigScriptNode struct {
	Name    string
	Actions []Action
}

// ConfigTree is the node tree Sheriff.LoadConfig consumes and
// Sheriff.SaveConfig produces.
type ConfigTree struct {
	Root    *ConfigGroupNode
	Scripts []*ConfigScriptNode
}

// LoadConfig loads commands and scripts from a parsed configuration tree
// (spec.md §4.3 "Config load"). If mergeWithExisting is false, every
// current command is scheduled for removal before new ones are added. If
// true, candidate commands whose (host, exec, nickname, group_path,
// auto_respawn) exactly match an existing command are skipped. Scripts are
// always replaced unconditionally. Fails in observer mode.
func (s *Sheriff) LoadConfig(tree *ConfigTree, mergeWithExisting bool) error {
	if err := s.requireNotObserver("Sheriff.LoadConfig"); err != nil {
		return err
	}

	if !mergeWithExisting {
		for _, c := range s.AllCommands() {
			if err := s.ScheduleCommandForRemoval(c); err != nil {
				return err
			}
		}
	}

	var existing map[configIdentity]bool
	if mergeWithExisting {
		existing = make(map[configIdentity]bool)
		for _, d := range s.deputies {
			for _, c := range d.commands {
				existing[configIdentity{d.Name, c.Name, c.Nickname, c.Group, c.AutoRespawn}] = true
			}
		}
	}

	if tree.Root != nil {
		if err := s.loadGroup(tree.Root, "", mergeWithExisting, existing); err != nil {
			return err
		}
	}

	scripts := make([]*Script, 0, len(tree.Scripts))
	for _, sn := range tree.Scripts {
		scripts = append(scripts, &Script{Name: sn.Name, Actions: append([]Action(nil), sn.Actions...)})
	}
	s.replaceAllScripts(scripts)

	return nil
}

type configIdentity struct {
	host, exec, nickname, group string
	autoRespawn                 bool
}

func (s *Sheriff) loadGroup(g *ConfigGroupNode, pathPrefix string, merge bool, existing map[configIdentity]bool) error {
	groupPath := pathPrefix
	if g.Name != "" {
		if groupPath == "" {
			groupPath = g.Name
		} else {
			groupPath = groupPath + "/" + g.Name
		}
	}

	for _, cmdNode := range g.Commands {
		id := configIdentity{cmdNode.Host, cmdNode.Exec, cmdNode.Nickname, NormalizeGroup(groupPath), cmdNode.AutoRespawn}
		if merge && existing[id] {
			continue
		}
		if _, err := s.AddCommand(cmdNode.Host, cmdNode.Exec, cmdNode.Nickname, groupPath, cmdNode.AutoRespawn); err != nil {
			return err
		}
	}
	for _, child := range g.Groups {
		if err := s.loadGroup(child, groupPath, merge, existing); err != nil {
			return err
		}
	}
	return nil
}

// SaveConfig round-trips the current commands and scripts into a
// configuration tree (spec.md §4.3 "Config save"): each command becomes a
// command node under its group with attributes exec, nickname, host (plus
// auto_respawn="true" when set); every script is serialized by its
// script-node representation.
func (s *Sheriff) SaveConfig() *ConfigTree {
	root := &ConfigGroupNode{}
	for _, d := range s.deputies {
		for _, c := range d.commands {
			if c.ScheduledForRemoval {
				continue
			}
			group := findOrCreateGroup(root, c.Group)
			group.Commands = append(group.Commands, &ConfigCommandNode{
				Host:        d.Name,
				Exec:        c.Name,
				Nickname:    c.Nickname,
				AutoRespawn: c.AutoRespawn,
			})
		}
	}

	tree := &ConfigTree{Root: root}
	for _, script := range s.Scripts() {
		tree.Scripts = append(tree.Scripts, &ConfigScriptNode{
			Name:    script.Name,
			Actions: append([]Action(nil), script.Actions...),
		})
	}
	return tree
}

// findOrCreateGroup walks/creates the chain of ConfigGroupNode for a
// normalized "/"-delimited group path, starting at root.
func findOrCreateGroup(root *ConfigGroupNode, groupPath string) *ConfigGroupNode {
	if groupPath == "" {
		return root
	}
	current := root
	for _, part := range strings.Split(groupPath, "/") {
		var next *ConfigGroupNode
		for _, g := range current.Groups {
			if g.Name == part {
				next = g
				break
			}
		}
		if next == nil {
			next = &ConfigGroupNode{Name: part}
			current.Groups = append(current.Groups, next)
		}
		current = next
	}
	return current
}
