// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	estimatesReceived       = metrics.NewCounter("feeno_estimates_received_total")
	bundlesCanceled         = metrics.NewCounter("feeno_bundles_canceled_total")
	notificationsQueued     = metrics.NewCounter("feeno_notifications_queued_total")
	notificationsDuplicated = metrics.NewCounter("feeno_notifications_duplicate_total")
	busReconnects           = metrics.NewCounter("feeno_bus_reconnects_total")
	queuePopStaleItems      = metrics.NewCounter("feeno_notify_queue_pop_stale_item_total")
	queueDroppedItems       = metrics.NewCounter("feeno_notify_queue_dropped_item_total")
)

func IncEstimatesReceived() {
	estimatesReceived.Inc()
}

func IncStrategyDegraded(strategy string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`feeno_strategy_degraded_total{strategy="%s"}`, strategy)).Inc()
}

func IncBundlesCanceled() {
	bundlesCanceled.Inc()
}

func IncNotificationsQueued() {
	notificationsQueued.Inc()
}

func IncNotificationsDuplicated() {
	notificationsDuplicated.Inc()
}

func IncNotificationDispatched(kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`feeno_notifications_dispatched_total{kind="%s"}`, kind)).Inc()
}

func IncNotificationFailed(kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`feeno_notifications_failed_total{kind="%s"}`, kind)).Inc()
}

func IncBusEventReceived(event string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`feeno_bus_events_received_total{event="%s"}`, event)).Inc()
}

func IncBusReconnects() {
	busReconnects.Inc()
}

func IncQueuePopStaleItem() {
	queuePopStaleItems.Inc()
}

func IncQueueDroppedItem() {
	queueDroppedItems.Inc()
}

func RecordRPCCallDuration(method string, duration int64) {
	metrics.GetOrCreateSummary(fmt.Sprintf(`feeno_rpc_call_duration_milliseconds{method="%s"}`, method)).Update(float64(duration))
}

func IncRPCCallFailure(method string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`feeno_rpc_call_failures_total{method="%s"}`, method)).Inc()
}

func RecordVenueCallDuration(duration int64) {
	metrics.GetOrCreateSummary(`feeno_venue_call_duration_milliseconds`).Update(float64(duration))
}
