// Package character holds the player characters that resource commands
// read and modify.
//
// A character carries a detail tree of named [Element] fields, the way a
// character sheet groups values ("Resource" → "HP" = 12). Characters are
// defined in YAML files ([LoadFile], [LoadFromReader]) and kept in a
// [Store]. All store operations are safe for concurrent use.
package character

// Character is a game character that can own resources.
type Character struct {
	// ID is a unique identifier. Generated if empty when added to a store.
	ID string `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// Player is the chat user id of the person who speaks as this character.
	Player string `yaml:"player,omitempty"`

	// Detail is the root of the character's data tree.
	Detail *Element `yaml:"detail,omitempty"`
}

// Clone returns a deep copy of c.
func (c Character) Clone() Character {
	c.Detail = c.Detail.Clone()
	return c
}

// Element is a named field of a character sheet. Containers have children;
// leaves have a value.
type Element struct {
	Name     string     `yaml:"name" json:"name"`
	Value    string     `yaml:"value,omitempty" json:"value,omitempty"`
	Children []*Element `yaml:"children,omitempty" json:"children,omitempty"`
}

// FirstByName returns the first descendant named name in depth-first
// order, or nil. e itself is not considered.
func (e *Element) FirstByName(name string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c == nil {
			continue
		}
		if c.Name == name {
			return c
		}
		if found := c.FirstByName(name); found != nil {
			return found
		}
	}
	return nil
}

// Clone returns a deep copy of e. Cloning nil returns nil.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{Name: e.Name, Value: e.Value}
	if e.Children != nil {
		out.Children = make([]*Element, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}
