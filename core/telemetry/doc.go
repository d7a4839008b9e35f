// Package telemetry provides the structured event side-channel for
// certificate lifecycle operations. Every stage of issuance, renewal and
// cache maintenance emits an Event to a Sink; emission is fire-and-forget
// and never fails or blocks the operation it describes.
//
// Three sinks are provided: NoopSink for tests and minimal setups, LogSink
// to forward events to slog, and ChannelSink to hand events to an external
// collector through a buffered channel that drops on overflow.
//
//	sink := telemetry.NewChannelSink(256)
//	go collector.Drain(sink.Events())
//
//	sink.Emit(ctx, telemetry.NewEvent("acme", "finalize", telemetry.OutcomeSuccess, elapsed, map[string]any{
//		"domain": "example.com",
//	}))
package telemetry
