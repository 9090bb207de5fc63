package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"offergate/crypto"
)

// TokenConfig registers a fungible asset with the ledger at startup.
type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// CollectionConfig registers a non-fungible collection at startup.
type CollectionConfig struct {
	Symbol string `toml:"Symbol"`
	Name   string `toml:"Name"`
}

// CriterionConfig is one asset threshold of a bootstrap campaign.
type CriterionConfig struct {
	Asset     string `toml:"Asset"`
	Threshold string `toml:"Threshold"`
}

// CampaignConfig provisions a campaign at startup. CreatedAt is required and
// must stay fixed: together with the definition order it pins the campaign
// identity, so claim ledgers survive restarts.
type CampaignConfig struct {
	ActivityType        string            `toml:"ActivityType"`
	RewardType          string            `toml:"RewardType"`
	Creator             string            `toml:"Creator"`
	Affiliate           string            `toml:"Affiliate"`
	CreatedAt           uint64            `toml:"CreatedAt"`
	Criteria            []CriterionConfig `toml:"Criteria"`
	ActivityWindowStart uint64            `toml:"ActivityWindowStart"`
	ActivityWindowEnd   uint64            `toml:"ActivityWindowEnd"`
	RewardName          string            `toml:"RewardName"`
	RewardAsset         string            `toml:"RewardAsset"`
	PerClaimAmount      string            `toml:"PerClaimAmount"`
	ExpectedCount       uint64            `toml:"ExpectedCount"`
	Broker              string            `toml:"Broker"`
	Automatic           bool              `toml:"Automatic"`
	DistributionDate    uint64            `toml:"DistributionDate"`
	RewardWindowStart   uint64            `toml:"RewardWindowStart"`
	RewardWindowEnd     uint64            `toml:"RewardWindowEnd"`
	BestEffortBatch     bool              `toml:"BestEffortBatch"`
	MaxBatchSize        int               `toml:"MaxBatchSize"`
	AffiliateBps        uint32            `toml:"AffiliateBps"`
	EligibilityEnabled  bool              `toml:"EligibilityEnabled"`
	SigningKey          string            `toml:"SigningKey"`
	ProofValidity       uint64            `toml:"ProofValidity"`
	RequireProof        bool              `toml:"RequireProof"`
}

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress  string             `toml:"ListenAddress"`
	MetricsAddress string             `toml:"MetricsAddress"`
	DataDir        string             `toml:"DataDir"`
	ServiceName    string             `toml:"ServiceName"`
	Environment    string             `toml:"Environment"`
	AdminToken     string             `toml:"AdminToken"`
	// Owner is the bech32 address owning the registry and factory.
	Owner       string             `toml:"Owner"`
	Tokens      []TokenConfig      `toml:"Tokens"`
	Collections []CollectionConfig `toml:"Collections"`
	// Admins are bech32 addresses granted ROLE_CAMPAIGN_ADMIN at startup.
	Admins []string `toml:"Admins"`
	// Origins are bech32 addresses authorized to create campaigns.
	Origins []string `toml:"Origins"`
	// Campaigns are provisioned at startup before the API accepts traffic.
	Campaigns []CampaignConfig `toml:"Campaigns"`
}

// Load reads and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8468"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "offergated"
	}
}

// Validate checks address fields decode and required fields are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config: Owner is required")
	}
	if _, err := crypto.DecodeAddress(c.Owner); err != nil {
		return fmt.Errorf("config: invalid Owner address: %w", err)
	}
	for _, admin := range c.Admins {
		if _, err := crypto.DecodeAddress(admin); err != nil {
			return fmt.Errorf("config: invalid admin address %q: %w", admin, err)
		}
	}
	for _, origin := range c.Origins {
		if _, err := crypto.DecodeAddress(origin); err != nil {
			return fmt.Errorf("config: invalid origin address %q: %w", origin, err)
		}
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for _, token := range c.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: token symbol must not be empty")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate token %s", symbol)
		}
		seen[symbol] = struct{}{}
	}
	for i, camp := range c.Campaigns {
		if strings.TrimSpace(camp.ActivityType) == "" || strings.TrimSpace(camp.RewardType) == "" {
			return fmt.Errorf("config: campaign %d: ActivityType and RewardType are required", i)
		}
		if camp.CreatedAt == 0 {
			return fmt.Errorf("config: campaign %d: CreatedAt is required", i)
		}
		if _, err := crypto.DecodeAddress(camp.Creator); err != nil {
			return fmt.Errorf("config: campaign %d: invalid Creator: %w", i, err)
		}
		if camp.Affiliate != "" {
			if _, err := crypto.DecodeAddress(camp.Affiliate); err != nil {
				return fmt.Errorf("config: campaign %d: invalid Affiliate: %w", i, err)
			}
		}
		if camp.Broker != "" {
			if _, err := crypto.DecodeAddress(camp.Broker); err != nil {
				return fmt.Errorf("config: campaign %d: invalid Broker: %w", i, err)
			}
		}
		if camp.SigningKey != "" {
			if _, err := crypto.DecodeAddress(camp.SigningKey); err != nil {
				return fmt.Errorf("config: campaign %d: invalid SigningKey: %w", i, err)
			}
		}
	}
	return nil
}

// OwnerAddress returns the decoded owner address.
func (c *Config) OwnerAddress() ([20]byte, error) {
	return decode20(c.Owner)
}

func decode20(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

// AdminAddresses returns the decoded admin addresses.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	return decodeAll(c.Admins)
}

// OriginAddresses returns the decoded authorized origins.
func (c *Config) OriginAddresses() ([][20]byte, error) {
	return decodeAll(c.Origins)
}

func decodeAll(addrs []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(addrs))
	for _, addr := range addrs {
		decoded, err := decode20(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}
