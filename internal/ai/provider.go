package ai

import "context"

// Provider is the language-model seam AI NPC blueprints reach through the
// driver API. The default build ships only the disabled provider; an
// operator wires a real backend by implementing this interface.
type Provider interface {
	// Complete turns an NPC's prompt (persona plus recent observations)
	// into a reply. An empty reply means the NPC stays silent.
	Complete(ctx context.Context, prompt string) (string, error)
	Enabled() bool
}

// Disabled is the no-op provider used when no backend is configured.
type Disabled struct{}

func (Disabled) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (Disabled) Enabled() bool { return false }
