package feeno

import (
	"context"
	"errors"
	"time"

	"github.com/bogdanuch/feeno-api/jsonrpcserver"
	"github.com/bogdanuch/feeno-api/metrics"
	"go.uber.org/zap"
)

var bundleCallTimeout = 3 * time.Second

type API struct {
	log *zap.Logger

	estimator *Estimator
	lifecycle *Lifecycle
	tokens    TokenResolver
}

func NewAPI(log *zap.Logger, estimator *Estimator, lifecycle *Lifecycle, tokens TokenResolver) *API {
	return &API{
		log:       log.Named("api"),
		estimator: estimator,
		lifecycle: lifecycle,
		tokens:    tokens,
	}
}

// Methods lists the JSON-RPC methods served by the node
func (m *API) Methods() jsonrpcserver.Methods {
	return jsonrpcserver.Methods{
		EstimateEndpointName:     m.Estimate,
		GetEstimateEndpointName:  m.GetEstimate,
		GetBundleEndpointName:    m.GetBundle,
		CancelBundleEndpointName: m.CancelBundle,
		TokensEndpointName:       m.Tokens,
	}
}

func track(method string, startAt time.Time, err error) {
	metrics.RecordRPCCallDuration(method, time.Since(startAt).Milliseconds())
	if err != nil {
		metrics.IncRPCCallFailure(method)
	}
}

// hideInternal keeps API errors and replaces anything else with a generic error
func hideInternal(err error) error {
	var apiErr *Error
	if err == nil || errors.As(err, &apiErr) {
		return err
	}
	return ErrInternalServiceError
}

// exposeInternal keeps API errors and reports anything else with its message
func exposeInternal(err error) error {
	var apiErr *Error
	if err == nil || errors.As(err, &apiErr) {
		return err
	}
	return ErrInternalServiceError.WithMessage(err.Error())
}

func (m *API) Estimate(ctx context.Context, req QuoteRequest) (_ *Quote, err error) {
	startAt := time.Now()
	defer func() { track(EstimateEndpointName, startAt, err) }()

	quote, err := m.estimator.Estimate(ctx, &req)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			m.log.Error("Estimation failed", zap.String("origin", jsonrpcserver.GetOrigin(ctx)), zap.Error(err))
		}
		return nil, hideInternal(err)
	}
	return quote, nil
}

func (m *API) GetEstimate(ctx context.Context, id string) (_ *Quote, err error) {
	startAt := time.Now()
	defer func() { track(GetEstimateEndpointName, startAt, err) }()

	quote, err := m.estimator.GetEstimate(ctx, id)
	return quote, hideInternal(err)
}

func (m *API) GetBundle(ctx context.Context, id string) (_ *BundleRecord, err error) {
	startAt := time.Now()
	defer func() { track(GetBundleEndpointName, startAt, err) }()

	ctx, cancel := context.WithTimeout(ctx, bundleCallTimeout)
	defer cancel()

	bundle, err := m.lifecycle.GetStatus(ctx, id)
	if err != nil {
		return nil, exposeInternal(err)
	}
	return &bundle, nil
}

func (m *API) CancelBundle(ctx context.Context, id string) (_ *BundleRecord, err error) {
	startAt := time.Now()
	defer func() { track(CancelBundleEndpointName, startAt, err) }()

	ctx, cancel := context.WithTimeout(ctx, bundleCallTimeout)
	defer cancel()

	bundle, err := m.lifecycle.Cancel(ctx, id)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			m.log.Warn("Failed to cancel bundle", zap.String("bundle", id), zap.String("origin", jsonrpcserver.GetOrigin(ctx)), zap.Error(err))
		}
		return nil, exposeInternal(err)
	}
	return &bundle, nil
}

func (m *API) Tokens(_ context.Context) ([]Token, error) {
	return m.tokens.Tokens(), nil
}
