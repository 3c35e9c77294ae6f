package game

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest is the boot document at the root of the world directory. It
// names the blueprints compiled at startup and the instances a fresh
// world begins with. A restored world only uses the preload list.
type Manifest struct {
	Preload []string    `yaml:"preload"`
	Boot    []BootEntry `yaml:"boot"`
}

type BootEntry struct {
	Blueprint string `yaml:"blueprint"`
	Into      string `yaml:"into,omitempty"` // room blueprint to place the clone in
}

func LoadManifest(worldDir string) (*Manifest, error) {
	path := filepath.Join(worldDir, "manifest.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// bootFresh builds the initial world from the manifest: preload compiles,
// boot entries clone. Runs with ws.Mu held.
func (g *Game) bootFresh(m *Manifest) error {
	for _, bp := range m.Preload {
		if _, err := g.ws.Objects.LoadBlueprint(bp); err != nil {
			return fmt.Errorf("preload %s: %w", bp, err)
		}
	}
	for _, entry := range m.Boot {
		id, err := g.ws.Objects.Clone(entry.Blueprint, nil)
		if err != nil {
			return fmt.Errorf("boot clone %s: %w", entry.Blueprint, err)
		}
		if entry.Into != "" {
			room, err := g.roomInstance(entry.Into)
			if err != nil {
				return fmt.Errorf("boot place %s: %w", entry.Blueprint, err)
			}
			if err := g.ws.MoveObject(id, room); err != nil {
				return fmt.Errorf("boot place %s: %w", entry.Blueprint, err)
			}
		}
		g.log.Info("boot instance", zap.String("object", id))
	}
	return nil
}

// roomInstance resolves a room blueprint to its singleton live instance,
// cloning on first reference.
func (g *Game) roomInstance(bp string) (string, error) {
	if b, ok := g.ws.Objects.Blueprint(bp); ok {
		if ids := b.InstanceIDs(); len(ids) > 0 {
			return ids[0], nil
		}
	}
	return g.ws.Objects.Clone(bp, nil)
}
