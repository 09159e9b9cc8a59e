package monitor

import "testing"

func TestFormatProviderKey(t *testing.T) {
	cases := map[string]string{
		"AaveV3Provider":       "Aave V3",
		"Re7MorphoProvider":    "RE7 Morpho",
		"CompoundV3Provider":   "Compound V3",
		"dolomiteProvider":     "Dolomite",
		"USDCVaultProvider":    "USDC Vault",
		"GmxProvider":          "GMX",
		"Provider":             "",
		"silo_finance":         "Silo Finance",
		"FluidLendingProvider": "Fluid Lending",
	}
	for key, want := range cases {
		if got := FormatProviderKey(key); got != want {
			t.Errorf("FormatProviderKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestDisplayNamePrefersIdentifier(t *testing.T) {
	if got := DisplayName("Aave_V3_Provider", "AaveV3Provider"); got != "Aave_V3_Provider" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName("  ", "AaveV3Provider"); got != "Aave V3" {
		t.Fatalf("got %q", got)
	}
}
