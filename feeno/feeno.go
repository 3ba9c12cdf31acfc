// Package feeno implements the fee quoting node
// Here is a full flow of data through the node:
//
// JSON-RPC API -> Estimator:
//   - validates the request against the transaction kind
//   - resolves the fee token and the current gas price snapshot
//
// Estimator -> TransactionKind simulates the request once per strategy, in parallel
// Estimator -> PriceClient / VenueClient converts native fees into the fee token
// Estimator -> Store keeps the quote for the submission service
//
// API -> Lifecycle reads and cancels bundles written by the submission service
// Lifecycle -> Notifier queues an alert for the notification dispatcher
package feeno

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	QuoteTTL  = 10 * time.Minute
	BundleTTL = time.Hour

	BundleKeyPrefix = "feeno-"

	CancelInitiatorUser = "User"

	// NativeDecimals is the precision of the chain asset (wei)
	NativeDecimals = 18
)

var (
	// quoted token fees are inflated by 5% to absorb price movement until the bundle lands
	gasPriceIncreaseCoefficient = decimal.RequireFromString("1.05")

	oracleTimeout = 3 * time.Second
	venueTimeout  = 20 * time.Second
)
