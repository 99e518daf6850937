package flow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/rs/zerolog"
)

// FlowDataIpv4 is one export record (spec.md section 4.5 "Export record
// semantics").
type FlowDataIpv4 struct {
	PrimaryUUID uuid.UUID
	EgressUUID  uuid.UUID

	SrcIP   uint32
	DstIP   uint32
	Proto   uint8
	SrcPort uint16
	DstPort uint16

	SrcVN  string
	DstVN  string
	VMName string

	Bytes       uint64
	Packets     uint64
	DiffBytes   uint64
	DiffPackets uint64

	SetupTime    time.Time
	TeardownTime time.Time

	// DirectionIngress is spec.md's direction_ing flag.
	DirectionIngress bool
}

// ExportSink is the named boundary to the out-of-scope telemetry-
// serialization layer (SPEC_FULL section 4.5): production wiring
// supplies an ExportSink from outside this module (e.g. the RPC layer);
// LoggingSink below is this module's local-dev/test default.
type ExportSink interface {
	Export(ctx context.Context, rec FlowDataIpv4) error
}

// LoggingSink logs every record via zerolog instead of shipping it
// anywhere — the default ExportSink until a real transport is wired in.
type LoggingSink struct {
	logger zerolog.Logger
}

// NewLoggingSink constructs a LoggingSink.
func NewLoggingSink() *LoggingSink {
	return &LoggingSink{logger: log.WithComponent("flow-export")}
}

// Export implements ExportSink.
func (s *LoggingSink) Export(ctx context.Context, rec FlowDataIpv4) error {
	s.logger.Debug().
		Str("primary_uuid", rec.PrimaryUUID.String()).
		Str("src_vn", rec.SrcVN).
		Str("dst_vn", rec.DstVN).
		Uint64("bytes", rec.Bytes).
		Uint64("packets", rec.Packets).
		Uint64("diff_bytes", rec.DiffBytes).
		Uint64("diff_packets", rec.DiffPackets).
		Bool("direction_ing", rec.DirectionIngress).
		Msg("flow export")
	return nil
}
