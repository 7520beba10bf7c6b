package goSession

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/internal/audit"
)

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// ZerologSink logs events through a zerolog.Logger.
type ZerologSink = audit.ZerologSink

// MultiSink fans an event out to several sinks in order.
type MultiSink = audit.MultiSink

// NewChannelSink returns a sink whose Events channel holds up to buffer events.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing newline-delimited JSON to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewZerologSink returns a sink logging failed events at warn and the rest at info.
func NewZerologSink(logger zerolog.Logger) *ZerologSink { return audit.NewZerologSink(logger) }
