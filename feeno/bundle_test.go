package feeno

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBundleJSON = `{
	"id": "0xabc",
	"status": "inProgress",
	"broadcastCount": 2,
	"blocksCountToResubmit": 5,
	"transactions": [{"hash": "0x01"}],
	"bloxrouteUrl": "https://relay.example",
	"quoteId": "q-1",
	"resubmitAt": 18000000
}`

func TestBundleRecordKeepsUnknownFields(t *testing.T) {
	var bundle BundleRecord
	require.NoError(t, json.Unmarshal([]byte(testBundleJSON), &bundle))
	require.Equal(t, BundleStatusInProgress, bundle.Status)
	require.Equal(t, 2, bundle.BroadcastCount)
	require.Equal(t, 5, bundle.BlocksCountToResubmit)

	quoteID, ok := bundle.Extra("quoteId")
	require.True(t, ok)
	require.JSONEq(t, `"q-1"`, string(quoteID))
	_, ok = bundle.Extra("status")
	require.False(t, ok)

	bundle.Status = BundleStatusCanceled
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": "0xabc",
		"status": "canceled",
		"broadcastCount": 2,
		"blocksCountToResubmit": 5,
		"transactions": [{"hash": "0x01"}],
		"bloxrouteUrl": "https://relay.example",
		"quoteId": "q-1",
		"resubmitAt": 18000000
	}`, string(data))
}

func TestBundleRecordRedacted(t *testing.T) {
	var bundle BundleRecord
	require.NoError(t, json.Unmarshal([]byte(testBundleJSON), &bundle))

	redacted := bundle.Redacted()
	require.Nil(t, redacted.Transactions)
	require.Empty(t, redacted.BloxrouteURL)
	require.NotNil(t, bundle.Transactions)

	data, err := json.Marshal(redacted)
	require.NoError(t, err)
	require.NotContains(t, string(data), "transactions")
	require.NotContains(t, string(data), "bloxrouteUrl")
	require.Contains(t, string(data), "quoteId")
}

func TestBundleRecordWithoutExtras(t *testing.T) {
	data, err := json.Marshal(BundleRecord{ID: "0x1", Status: BundleStatusMined})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"0x1","status":"mined","broadcastCount":0,"blocksCountToResubmit":0}`, string(data))
}
