package arbitrage_test

import (
	"testing"

	"github.com/bryan-buckman/dealscout/internal/arbitrage"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/shopspring/decimal"
)

func product(price string) model.ExtractedProduct {
	return model.ExtractedProduct{Name: "Sony WH-1000XM5", AskingPrice: decimal.RequireFromString(price)}
}

func quote(median string) model.MarketQuote {
	if median == "" {
		return model.MarketQuote{}
	}
	return model.MarketQuote{SoldMedianPrice: decimal.NewNullDecimal(decimal.RequireFromString(median))}
}

func TestEvaluate(t *testing.T) {
	fee := decimal.RequireFromString("0.10")
	threshold := decimal.NewFromInt(15)

	tests := []struct {
		name       string
		asking     string
		median     string
		wantOK     bool
		wantProfit string
		qualifies  bool
	}{
		{"profitable", "50", "70", true, "20", true},
		{"below threshold", "50", "60", true, "10", false},
		{"exactly threshold", "50", "65", true, "15", false},
		{"negative profit kept", "80", "60", true, "-20", false},
		{"no asking price", "0", "70", false, "", false},
		{"no median", "50", "", false, "", false},
		{"zero median", "50", "0", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ok := arbitrage.Evaluate(product(tt.asking), quote(tt.median), fee)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if o.Profit.String() != tt.wantProfit {
				t.Errorf("profit = %s, want %s", o.Profit, tt.wantProfit)
			}
			if got := arbitrage.Qualifies(o, threshold); got != tt.qualifies {
				t.Errorf("qualifies = %v, want %v", got, tt.qualifies)
			}
		})
	}
}

func TestEvaluateFeeIsResaleTimesRate(t *testing.T) {
	fee := decimal.RequireFromString("0.10")
	o, ok := arbitrage.Evaluate(product("50"), quote("70"), fee)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if !o.FeeAmount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("fee = %s, want 7", o.FeeAmount)
	}

	o, ok = arbitrage.Evaluate(product("50"), quote("90"), fee)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if !o.FeeAmount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("fee = %s, want 9", o.FeeAmount)
	}
	if !o.ResalePrice.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("resale = %s, want net median 90", o.ResalePrice)
	}
}
