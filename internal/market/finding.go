package market

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Finding API operations.
const (
	opSold   = "findCompletedItems"
	opActive = "findItemsAdvanced"
)

type findingError struct {
	Error []struct {
		Message []string `json:"message"`
	} `json:"error"`
}

type findingResponse struct {
	Ack          []string       `json:"ack"`
	ErrorMessage []findingError `json:"errorMessage"`
	SearchResult []struct {
		Item []findingItem `json:"item"`
	} `json:"searchResult"`
}

type findingItem struct {
	Title         []string `json:"title"`
	ViewItemURL   []string `json:"viewItemURL"`
	SellingStatus []struct {
		CurrentPrice []struct {
			Currency string `json:"@currencyId"`
			Value    string `json:"__value__"`
		} `json:"currentPrice"`
	} `json:"sellingStatus"`
}

// price returns the item's current price, or false when it is missing or not positive.
func (it findingItem) price() (decimal.Decimal, bool) {
	if len(it.SellingStatus) == 0 || len(it.SellingStatus[0].CurrentPrice) == 0 {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(it.SellingStatus[0].CurrentPrice[0].Value))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// decodePrices extracts all positive item prices from a Finding API JSON
// payload. API-level errors embedded in a 200 response are returned as errors.
func decodePrices(op string, body []byte) ([]decimal.Decimal, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", op, err)
	}
	if raw, ok := envelope["errorMessage"]; ok {
		var errs []findingError
		_ = json.Unmarshal(raw, &errs)
		return nil, fmt.Errorf("%s: %s", op, errorText(errs))
	}
	raw, ok := envelope[op+"Response"]
	if !ok {
		return nil, fmt.Errorf("%s: response field missing", op)
	}
	var resps []findingResponse
	if err := json.Unmarshal(raw, &resps); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	if len(resps) == 0 {
		return nil, fmt.Errorf("%s: empty response", op)
	}
	resp := resps[0]
	if len(resp.ErrorMessage) > 0 || (len(resp.Ack) > 0 && strings.EqualFold(resp.Ack[0], "Failure")) {
		return nil, fmt.Errorf("%s: %s", op, errorText(resp.ErrorMessage))
	}

	var prices []decimal.Decimal
	for _, sr := range resp.SearchResult {
		for _, it := range sr.Item {
			if p, ok := it.price(); ok {
				prices = append(prices, p)
			}
		}
	}
	return prices, nil
}

func errorText(errs []findingError) string {
	for _, e := range errs {
		for _, inner := range e.Error {
			if len(inner.Message) > 0 && inner.Message[0] != "" {
				return inner.Message[0]
			}
		}
	}
	return "api reported failure"
}
