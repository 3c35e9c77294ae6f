package world

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrCycle       = errors.New("world: containment cycle")
	ErrNotContained = errors.New("world: object has no container")
	ErrSlotTaken   = errors.New("world: equipment slot occupied")
	ErrNotEquipped = errors.New("world: nothing equipped in slot")
)

// Containment is the bidirectional "X is in Y" registry plus equipment
// slots. The graph is a forest: at most one container per object, cycles
// rejected. Contents keep insertion order. Guarded by the world-state
// critical section.
type Containment struct {
	parent   map[string]string   // child -> container
	contents map[string][]string // container -> children, insertion order
	equipped map[string]map[string]string // wearer -> slot -> item
}

func NewContainment() *Containment {
	return &Containment{
		parent:   make(map[string]string),
		contents: make(map[string][]string),
		equipped: make(map[string]map[string]string),
	}
}

// Add establishes "child is in container". The child must be detached.
func (c *Containment) Add(container, child string) error {
	if cur, ok := c.parent[child]; ok {
		return fmt.Errorf("world: %s is already in %s", child, cur)
	}
	if c.wouldCycle(container, child) {
		return fmt.Errorf("%w: %s into %s", ErrCycle, child, container)
	}
	c.parent[child] = container
	c.contents[container] = append(c.contents[container], child)
	return nil
}

// Remove detaches child from its container. Legal for every object kind;
// a removed object is nowhere until re-added. Any equipment slot holding
// it is cleared first (invariant 3: equipped implies contained).
func (c *Containment) Remove(child string) error {
	container, ok := c.parent[child]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotContained, child)
	}
	if slots := c.equipped[container]; slots != nil {
		for slot, item := range slots {
			if item == child {
				delete(slots, slot)
			}
		}
	}
	delete(c.parent, child)
	list := c.contents[container]
	for i, id := range list {
		if id == child {
			c.contents[container] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(c.contents[container]) == 0 {
		delete(c.contents, container)
	}
	return nil
}

// Move reparents child atomically: one observable state, no intermediate
// "nowhere". A child without a container is simply added.
func (c *Containment) Move(child, newContainer string) error {
	if c.parent[child] == newContainer {
		return nil
	}
	if c.wouldCycle(newContainer, child) {
		return fmt.Errorf("%w: %s into %s", ErrCycle, child, newContainer)
	}
	if _, ok := c.parent[child]; ok {
		if err := c.Remove(child); err != nil {
			return err
		}
	}
	return c.Add(newContainer, child)
}

// Container returns child's container, if any.
func (c *Containment) Container(child string) (string, bool) {
	p, ok := c.parent[child]
	return p, ok
}

// Contents returns the container's children in insertion order. The slice
// is a copy; callers may not mutate shared registry state.
func (c *Containment) Contents(container string) []string {
	list := c.contents[container]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// wouldCycle reports whether putting child under container would create a
// cycle (container is child or a descendant of child).
func (c *Containment) wouldCycle(container, child string) bool {
	for cur := container; ; {
		if cur == child {
			return true
		}
		next, ok := c.parent[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

// DropAll detaches every child of container and the container itself.
// Used by destruct teardown; children end up containerless, the caller
// decides where they fall.
func (c *Containment) DropAll(container string) []string {
	children := c.Contents(container)
	for _, child := range children {
		_ = c.Remove(child)
	}
	if _, ok := c.parent[container]; ok {
		_ = c.Remove(container)
	}
	delete(c.equipped, container)
	return children
}

// ── Equipment ──────────────────────────────────────────────────────

// Equip assigns item to the wearer's slot. The item must already be
// contained by the wearer, or it is moved there implicitly.
func (c *Containment) Equip(wearer, slot, item string) error {
	if cur, ok := c.equipped[wearer][slot]; ok {
		return fmt.Errorf("%w: %s/%s holds %s", ErrSlotTaken, wearer, slot, cur)
	}
	if c.parent[item] != wearer {
		if err := c.Move(item, wearer); err != nil {
			return err
		}
	}
	if c.equipped[wearer] == nil {
		c.equipped[wearer] = make(map[string]string)
	}
	c.equipped[wearer][slot] = item
	return nil
}

// Unequip clears a slot. Containment is untouched: the item stays carried.
func (c *Containment) Unequip(wearer, slot string) (string, error) {
	item, ok := c.equipped[wearer][slot]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotEquipped, wearer, slot)
	}
	delete(c.equipped[wearer], slot)
	if len(c.equipped[wearer]) == 0 {
		delete(c.equipped, wearer)
	}
	return item, nil
}

// Equipped returns a copy of the wearer's slot map.
func (c *Containment) Equipped(wearer string) map[string]string {
	slots := c.equipped[wearer]
	out := make(map[string]string, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}

// EquippedItem returns what the wearer has in one slot.
func (c *Containment) EquippedItem(wearer, slot string) (string, bool) {
	item, ok := c.equipped[wearer][slot]
	return item, ok
}

// Wearers lists every object with at least one occupied slot, sorted.
// Snapshot capture iterates this.
func (c *Containment) Wearers() []string {
	out := make([]string, 0, len(c.equipped))
	for w := range c.equipped {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Edges returns every (child, parent) pair, children sorted. Snapshot
// capture iterates this.
func (c *Containment) Edges() [][2]string {
	children := make([]string, 0, len(c.parent))
	for child := range c.parent {
		children = append(children, child)
	}
	sort.Strings(children)
	out := make([][2]string, 0, len(children))
	for _, child := range children {
		out = append(out, [2]string{child, c.parent[child]})
	}
	return out
}
