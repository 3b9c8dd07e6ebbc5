package repository

import (
	"testing"
	"time"
)

func TestNormalizeAssetName(t *testing.T) {
	tests := map[string]string{
		"BTC_15M":   "BTC",
		"btc_1h":    "BTC",
		"ETH_DAILY": "ETH",
		" SOL ":     "SOL",
		"XRP_15MIN": "XRP_15MIN",
		"BTC_M":     "BTC_M",
	}
	for in, want := range tests {
		if got := NormalizeAssetName(in); got != want {
			t.Errorf("NormalizeAssetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimeframe(t *testing.T) {
	if NormalizeTimeframe("5m") != TF5m || NormalizeTimeframe("4h") != TF1m || NormalizeTimeframe("") != TF1m {
		t.Fatal("NormalizeTimeframe should fall back to 1m")
	}
	if TF5m.Duration() != 5*time.Minute || TF1m.Duration() != time.Minute {
		t.Fatalf("durations = %v, %v", TF5m.Duration(), TF1m.Duration())
	}
}
