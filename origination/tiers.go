package origination

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Tier captures the offered loan product parameters. Nominal rates drive the
// provisional estimate only; the ledger's schedule remains the enforced one.
type Tier struct {
	Name               string `toml:"Name"`
	NominalRateBps     uint64 `toml:"NominalRateBps"`
	MaxLTVBps          uint64 `toml:"MaxLTVBps"`
	BufferBps          uint64 `toml:"BufferBps"`
	MinDurationSeconds uint64 `toml:"MinDurationSeconds"`
	MaxDurationSeconds uint64 `toml:"MaxDurationSeconds"`
	StaticGasLimit     uint64 `toml:"StaticGasLimit"`
}

// TierCatalog is the full product configuration loaded at boot.
type TierCatalog struct {
	Tiers []Tier `toml:"tier"`
}

// LoadTiers reads the TOML tier catalog from disk and validates it.
func LoadTiers(path string) (TierCatalog, error) {
	var catalog TierCatalog
	if strings.TrimSpace(path) == "" {
		return catalog, fmt.Errorf("tier catalog path required")
	}
	if _, err := toml.DecodeFile(path, &catalog); err != nil {
		return TierCatalog{}, fmt.Errorf("decode tier catalog: %w", err)
	}
	catalog.EnsureDefaults()
	if err := catalog.Validate(); err != nil {
		return TierCatalog{}, err
	}
	return catalog, nil
}

// EnsureDefaults fills zero duration bounds and gas limits with the contract
// defaults so a sparse catalog file stays valid.
func (c *TierCatalog) EnsureDefaults() {
	if c == nil {
		return
	}
	for i := range c.Tiers {
		tier := &c.Tiers[i]
		if tier.MinDurationSeconds == 0 {
			tier.MinDurationSeconds = uint64(MinDuration / time.Second)
		}
		if tier.MaxDurationSeconds == 0 {
			tier.MaxDurationSeconds = uint64(MaxDuration / time.Second)
		}
		if tier.StaticGasLimit == 0 {
			tier.StaticGasLimit = defaultStaticGasLimit
		}
	}
}

// Validate rejects catalogs with unusable tiers.
func (c TierCatalog) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("tier catalog is empty")
	}
	seen := make(map[string]struct{}, len(c.Tiers))
	for _, tier := range c.Tiers {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			return fmt.Errorf("tier name required")
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate tier %q", name)
		}
		seen[key] = struct{}{}
		if tier.MaxLTVBps == 0 || tier.MaxLTVBps > 10_000 {
			return fmt.Errorf("tier %q: max LTV must be within (0, 10000] bps", name)
		}
		if tier.MinDurationSeconds > tier.MaxDurationSeconds {
			return fmt.Errorf("tier %q: min duration exceeds max", name)
		}
	}
	return nil
}

// Find returns the named tier, case-insensitively.
func (c TierCatalog) Find(name string) (Tier, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, tier := range c.Tiers {
		if strings.ToLower(tier.Name) == needle {
			return tier, true
		}
	}
	return Tier{}, false
}

const defaultStaticGasLimit = 650_000

// DefaultTiers is the catalog used when no file is configured.
func DefaultTiers() TierCatalog {
	catalog := TierCatalog{Tiers: []Tier{
		{Name: "standard", NominalRateBps: 850, MaxLTVBps: 6_000, BufferBps: 500},
		{Name: "preferred", NominalRateBps: 650, MaxLTVBps: 7_000, BufferBps: 400},
	}}
	catalog.EnsureDefaults()
	return catalog
}
