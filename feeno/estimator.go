package feeno

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bogdanuch/feeno-api/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errNoTiers = errors.New("gas price snapshot has no speed tiers")

type Estimator struct {
	log *zap.Logger

	kinds  Kinds
	tokens TokenResolver
	gas    GasOracle
	prices PriceClient
	venue  VenueClient
	store  Store

	// discount excludes onboarding sub-steps from the priced gas
	discount bool
	newID    func() string
}

func NewEstimator(
	log *zap.Logger,
	kinds Kinds, tokens TokenResolver, gas GasOracle, prices PriceClient, venue VenueClient, store Store,
	discount bool,
) *Estimator {
	return &Estimator{
		log:      log.Named("estimator"),
		kinds:    kinds,
		tokens:   tokens,
		gas:      gas,
		prices:   prices,
		venue:    venue,
		store:    store,
		discount: discount,
		newID:    func() string { return uuid.New().String() },
	}
}

// Estimate prices the request for every supported strategy and stores the quote.
// Failures before the fan out abort the request, failures of one strategy only degrade it.
func (e *Estimator) Estimate(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	metrics.IncEstimatesReceived()
	logger := e.log.With(zap.String("transactionType", req.TransactionType), zap.String("from", req.AddressFrom.Hex()))

	kind, err := e.kinds.Validate(req)
	if err != nil {
		return nil, err
	}

	token, err := e.tokens.ResolveToken(ctx, req.ERC20TokenToPayFee)
	if err != nil {
		logger.Warn("Failed to resolve fee token", zap.Error(err))
		return nil, err
	}

	gas, err := e.gasPrice(ctx)
	if err != nil {
		logger.Error("Failed to get the gas price", zap.Error(err))
		return nil, ErrOracleUnavailable
	}

	approveRequired, err := kind.ApproveRequired(ctx, req.AddressFrom, token)
	if err != nil {
		logger.Error("Failed to check allowance", zap.Error(err))
		return nil, ErrInternalServiceError
	}

	quote := &Quote{
		Status:             true,
		ID:                 e.newID(),
		ERC20TokenToPayFee: req.ERC20TokenToPayFee,
		ApproveRequired:    approveRequired,
		MarketGasPriceGwei: gas,
		FeePayer:           req.FeePayer,
		TransactionType:    req.TransactionType,
		AddressFrom:        req.AddressFrom,
		ExecutionSwap:      make(map[Strategy]*StrategyQuote, len(SupportedStrategies)),
		ETHQuantity:        req.TransactionBody["value"],
	}

	job := strategyJob{
		kind:  kind,
		token: token,
		gas:   gas,
		sim: SimulationInput{
			Params:          req.TransactionBody,
			Sender:          req.AddressFrom,
			FeeToken:        token,
			FeePayer:        req.FeePayer,
			ApproveRequired: approveRequired,
		},
	}

	results := make([]*StrategyQuote, len(SupportedStrategies))
	var wg sync.WaitGroup
	for i, strategy := range SupportedStrategies {
		wg.Add(1)
		go func(i int, strategy Strategy) {
			defer wg.Done()
			results[i] = e.evaluate(ctx, logger.With(zap.String("strategy", string(strategy))), strategy, job)
		}(i, strategy)
	}
	wg.Wait()

	for i, strategy := range SupportedStrategies {
		quote.ExecutionSwap[strategy] = results[i]
		if results[i].Degraded() {
			metrics.IncStrategyDegraded(string(strategy))
		}
	}

	if err := e.store.PutQuote(ctx, quote); err != nil {
		logger.Error("Failed to store estimate", zap.Error(err))
		return nil, ErrInternalServiceError
	}
	logger.Info("Estimation stored", zap.String("id", quote.ID), zap.Any("result", quote))

	return quote.Redacted(), nil
}

// GetEstimate returns a stored quote
func (e *Estimator) GetEstimate(ctx context.Context, id string) (*Quote, error) {
	if id == "" {
		return nil, ErrInvalidRequest
	}
	quote, err := e.store.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	return quote.Redacted(), nil
}

func (e *Estimator) gasPrice(ctx context.Context) (*GasPriceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	gas, err := e.gas.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if gas == nil || len(gas.MaxPriorityFeePerGas) == 0 {
		return nil, errNoTiers
	}
	return gas, nil
}

type strategyJob struct {
	kind  TransactionKind
	token *Token
	gas   *GasPriceSnapshot
	sim   SimulationInput
}

type pricedTier struct {
	speed string
	price tierPrice
	quote *SpeedQuote
}

// evaluate never fails, any error or panic turns into a degraded strategy
func (e *Estimator) evaluate(ctx context.Context, logger *zap.Logger, strategy Strategy, job strategyJob) (res *StrategyQuote) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Strategy evaluation panicked", zap.Any("panic", r))
			res = degraded(ErrInternalServiceError.Message)
		}
	}()

	useVenue := strategy == StrategyCEX && !job.token.IsNative()
	if useVenue && job.token.CEXSymbol == "" {
		return degraded(ErrVenueUnavailable.Message)
	}

	estimate, err := job.kind.Simulate(ctx, strategy, job.sim)
	if err != nil {
		logger.Warn("Simulation failed", zap.Error(err))
		return degraded(simulationMessage(err))
	}

	price := unitPrice
	if strategy == StrategyDEX && !job.token.IsNative() {
		price, err = e.prices.TokenPrice(ctx, job.token)
		if err != nil {
			logger.Warn("Failed to get token price", zap.Error(err))
			return degraded("Failed to get the token price")
		}
	}

	res = &StrategyQuote{
		TotalGasUsage: estimate.TotalGasUsage,
		Simulations:   estimate.Simulations,
	}

	pricedGas := estimate.TotalGasUsage
	if e.discount {
		discount := estimate.Simulations.GasUsage(SubStepApprove, SubStepETHTransfer)
		pricedGas -= discount
		res.GasUsageDiscount = &discount
	}

	speeds := job.gas.Speeds()
	tiers := make([]pricedTier, 0, len(speeds))
	for _, speed := range speeds {
		p := priceTier(pricedGas, job.gas.BaseFee, job.gas.MaxPriorityFeePerGas[speed])
		minerTip := p.minerTip
		tiers = append(tiers, pricedTier{
			speed: speed,
			price: p,
			quote: &SpeedQuote{
				ETHGasFee:        p.ethGasFee,
				TokenBasedGasFee: tokenFee(p.ethGasFee, price.ETHToToken, job.token.Decimals),
				MinerTip:         &minerTip,
			},
		})
	}

	rate := price.TokenToETH
	if useVenue {
		tiers, rate, err = e.venueQuote(ctx, job.token, tiers)
		if err != nil {
			logger.Warn("Venue quote failed", zap.Error(err))
			return degraded(ErrVenueUnavailable.Message)
		}
	}
	res.ETHTokenPrice = &rate

	res.MiningSpeed = make(map[string]*SpeedQuote, len(tiers))
	for _, tier := range tiers {
		data, err := job.kind.BuildTransaction(ctx, strategy, BuildInput{
			Params:          job.sim.Params,
			Sender:          job.sim.Sender,
			FeeToken:        job.token,
			FeePayer:        job.sim.FeePayer,
			ApproveRequired: job.sim.ApproveRequired,
			Estimate:        estimate,
			FeeAmount:       toBaseUnits(tier.quote.TokenBasedGasFee, job.token.Decimals),
			NativeFee:       tier.price.nativeFee,
			BaseFee:         tier.price.baseFee,
			Tip:             tier.price.tip,
		})
		if err != nil {
			logger.Warn("Failed to build transaction", zap.String("speed", tier.speed), zap.Error(err))
			return degraded(simulationMessage(err))
		}
		tier.quote.Data = data
		res.MiningSpeed[tier.speed] = tier.quote
	}
	return res
}

// venueQuote replaces the token fee of every tier with the venue volume.
// Tiers the venue can not fill are dropped, the rate is averaged over the rest.
func (e *Estimator) venueQuote(ctx context.Context, token *Token, tiers []pricedTier) ([]pricedTier, decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, venueTimeout)
	defer cancel()

	ethFees := make([]decimal.Decimal, len(tiers))
	for i, tier := range tiers {
		ethFees[i] = tier.quote.ETHGasFee
	}
	volumes, err := e.venue.TradeEstimate(ctx, token.CEXSymbol, ethFees)
	if err != nil {
		return nil, decimal.Zero, err
	}

	kept := tiers[:0]
	keptFees := make([]decimal.Decimal, 0, len(tiers))
	keptVolumes := make([]decimal.Decimal, 0, len(tiers))
	for i, tier := range tiers {
		if i >= len(volumes) || !volumes[i].IsPositive() {
			continue
		}
		tier.quote.TokenBasedGasFee = volumes[i]
		kept = append(kept, tier)
		keptFees = append(keptFees, ethFees[i])
		keptVolumes = append(keptVolumes, volumes[i])
	}
	if len(kept) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: no tier was quoted", ErrVenueUnavailable)
	}
	return kept, averageRate(keptFees, keptVolumes), nil
}

// simulationMessage exposes request errors to the caller and hides everything else
func simulationMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && errors.Is(err, ErrInvalidRequest) {
		return apiErr.Message
	}
	return "Failed to simulate transaction"
}
