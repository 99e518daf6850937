package types

// Protocol identifies the IP protocol number of a flow key, matching the
// values found in an IPv4 header.
type Protocol uint8

const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// Well-known VN and VRF names recognized by the agent (spec.md section 6).
const (
	FabricVN  = "default-domain:default-project:ip-fabric"
	FabricVRF = "default-domain:default-project:ip-fabric:__default__"

	LinkLocalVN  = "default-domain:default-project:__link_local__"
	LinkLocalVRF = "default-domain:default-project:__link_local__:__link_local__"
)

// TunnelType is the encapsulation used between vrouters, as selected by the
// tunnel_type process option.
type TunnelType int

const (
	TunnelMPLSGRE TunnelType = iota
	TunnelMPLSUDP
	TunnelVXLAN
)

// ParseTunnelType maps the tunnel_type configuration string onto a
// TunnelType, defaulting to MPLS-over-GRE for any unrecognized value per
// spec.md section 6.
func ParseTunnelType(s string) TunnelType {
	switch s {
	case "MPLSoUDP":
		return TunnelMPLSUDP
	case "VXLAN":
		return TunnelVXLAN
	default:
		return TunnelMPLSGRE
	}
}

func (t TunnelType) String() string {
	switch t {
	case TunnelMPLSUDP:
		return "MPLSoUDP"
	case TunnelVXLAN:
		return "VXLAN"
	default:
		return "MPLSoGRE"
	}
}
