package feeno

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bogdanuch/feeno-api/metrics"
	"github.com/shopspring/decimal"
)

const TradeEstimateQueue = "FeenoTradeEstimateRequest"

// RPCCaller sends a request to a queue and waits for the correlated reply
type RPCCaller interface {
	Call(ctx context.Context, queue string, request, response any) error
}

type tradeEstimateRequest struct {
	Symbol     string        `json:"symbol"`
	ETHAmounts []json.Number `json:"ethAmounts"`
}

type tradeEstimateResponse struct {
	StatusCode   int               `json:"statusCode"`
	TokenVolumes []decimal.Decimal `json:"tokenVolumes"`
}

// BusVenueClient asks the exchange desk for trade estimates over the message bus
type BusVenueClient struct {
	rpc RPCCaller
}

func NewBusVenueClient(rpc RPCCaller) *BusVenueClient {
	return &BusVenueClient{rpc: rpc}
}

func (c *BusVenueClient) TradeEstimate(ctx context.Context, symbol string, ethAmounts []decimal.Decimal) ([]decimal.Decimal, error) {
	req := tradeEstimateRequest{Symbol: symbol, ETHAmounts: make([]json.Number, len(ethAmounts))}
	for i, amount := range ethAmounts {
		req.ETHAmounts[i] = json.Number(amount.String())
	}

	var resp tradeEstimateResponse
	startAt := time.Now()
	err := c.rpc.Call(ctx, TradeEstimateQueue, req, &resp)
	metrics.RecordVenueCallDuration(time.Since(startAt).Milliseconds())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrVenueUnavailable, resp.StatusCode)
	}
	return resp.TokenVolumes, nil
}
