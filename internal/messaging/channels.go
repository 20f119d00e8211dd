// Package messaging defines the standard channel names of the event bus.
package messaging

// Channel constants for the upstream producer's pub/sub channels.
// Follow the pattern: tickstock.{family}.{resource}
const (
	// Pattern channels - one base channel plus per-timeframe variants.
	ChannelPatterns         = "tickstock.events.patterns"
	ChannelPatternsDaily    = "tickstock.events.patterns.daily"
	ChannelPatternsIntraday = "tickstock.events.patterns.intraday"
	ChannelPatternsCombo    = "tickstock.events.patterns.combo"

	// Indicator streaming channel.
	ChannelIndicators = "tickstock.events.indicators"

	// Raw tick channel.
	ChannelTicks = "tickstock.ticks"

	// Job-control channels used by a separate subsystem. The names are a
	// boundary concern only; this service never subscribes to them.
	ChannelJobsControl = "tickstock.jobs.control"
	ChannelJobsStatus  = "tickstock.jobs.status"
)

// DefaultChannels is the full channel set this service consumes.
var DefaultChannels = []string{
	ChannelPatterns,
	ChannelPatternsDaily,
	ChannelPatternsIntraday,
	ChannelPatternsCombo,
	ChannelIndicators,
	ChannelTicks,
}
