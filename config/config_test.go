package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"offergate/crypto"
)

func testAddress(t *testing.T, b byte) string {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.OfferPrefix, raw).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	owner := testAddress(t, 1)
	cfg, err := Load(writeConfig(t, fmt.Sprintf("Owner = %q\n", owner)))
	require.NoError(t, err)
	require.Equal(t, ":8468", cfg.ListenAddress)
	require.Equal(t, ":9464", cfg.MetricsAddress)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "offergated", cfg.ServiceName)
}

func TestLoadFullConfig(t *testing.T) {
	owner := testAddress(t, 1)
	admin := testAddress(t, 2)
	orig := testAddress(t, 3)
	body := fmt.Sprintf(`
ListenAddress = ":9000"
DataDir = "/var/lib/offergate"
AdminToken = "secret"
Owner = %q
Admins = [%q]
Origins = [%q]

[[Tokens]]
Symbol = "USDC"
Name = "USD Coin"
Decimals = 6

[[Collections]]
Symbol = "PASS"
Name = "Season Pass"
`, owner, admin, orig)

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "secret", cfg.AdminToken)
	require.Len(t, cfg.Tokens, 1)
	require.Equal(t, uint8(6), cfg.Tokens[0].Decimals)
	require.Len(t, cfg.Collections, 1)

	ownerAddr, err := cfg.OwnerAddress()
	require.NoError(t, err)
	require.Equal(t, byte(1), ownerAddr[19])

	admins, err := cfg.AdminAddresses()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, byte(2), admins[0][19])

	origins, err := cfg.OriginAddresses()
	require.NoError(t, err)
	require.Len(t, origins, 1)
	require.Equal(t, byte(3), origins[0][19])
}

func TestLoadCampaignDefinitions(t *testing.T) {
	owner := testAddress(t, 1)
	creator := testAddress(t, 4)
	broker := testAddress(t, 5)
	signer := testAddress(t, 6)
	body := fmt.Sprintf(`
Owner = %q

[[Campaigns]]
ActivityType = "HOLD_THRESHOLD"
RewardType = "TOKEN_TRANSFER"
Creator = %q
CreatedAt = 1700000000
RewardName = "launch drop"
RewardAsset = "USDC"
PerClaimAmount = "20"
Broker = %q
BestEffortBatch = true
MaxBatchSize = 64
EligibilityEnabled = true
SigningKey = %q
ProofValidity = 3600
RequireProof = true

[[Campaigns.Criteria]]
Asset = "USDC"
Threshold = "100"
`, owner, creator, broker, signer)

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Len(t, cfg.Campaigns, 1)
	camp := cfg.Campaigns[0]
	require.Equal(t, "HOLD_THRESHOLD", camp.ActivityType)
	require.Equal(t, uint64(1700000000), camp.CreatedAt)
	require.Len(t, camp.Criteria, 1)
	require.Equal(t, "100", camp.Criteria[0].Threshold)
	require.True(t, camp.BestEffortBatch)
	require.Equal(t, 64, camp.MaxBatchSize)
	require.True(t, camp.EligibilityEnabled)
	require.Equal(t, signer, camp.SigningKey)
	require.Equal(t, uint64(3600), camp.ProofValidity)
	require.True(t, camp.RequireProof)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	owner := testAddress(t, 1)

	cases := []struct {
		name string
		body string
	}{
		{"missing owner", ""},
		{"malformed owner", "Owner = \"not-an-address\"\n"},
		{"malformed admin", fmt.Sprintf("Owner = %q\nAdmins = [\"garbage\"]\n", owner)},
		{"campaign with bad signing key", fmt.Sprintf(`
Owner = %q

[[Campaigns]]
ActivityType = "HOLD_THRESHOLD"
RewardType = "TOKEN_TRANSFER"
Creator = %q
CreatedAt = 1700000000
SigningKey = "not-an-address"
`, owner, owner)},
		{"campaign without CreatedAt", fmt.Sprintf(`
Owner = %q

[[Campaigns]]
ActivityType = "HOLD_THRESHOLD"
RewardType = "TOKEN_TRANSFER"
Creator = %q
`, owner, owner)},
		{"duplicate tokens", fmt.Sprintf(`
Owner = %q

[[Tokens]]
Symbol = "USDC"
Name = "a"

[[Tokens]]
Symbol = "usdc"
Name = "b"
`, owner)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}
