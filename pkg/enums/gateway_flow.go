package enums

import "slices"

// GatewayFlow describes how a gateway integrates with the buyer.
type GatewayFlow string

const (
	GatewayFlowRedirect     GatewayFlow = "redirect"
	GatewayFlowAPI          GatewayFlow = "api"
	GatewayFlowMobileWallet GatewayFlow = "mobile_wallet"
)

var validGatewayFlows = []GatewayFlow{
	GatewayFlowRedirect,
	GatewayFlowAPI,
	GatewayFlowMobileWallet,
}

// String implements fmt.Stringer.
func (g GatewayFlow) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayFlow.
func (g GatewayFlow) IsValid() bool {
	return slices.Contains(validGatewayFlows, g)
}

// ParseGatewayFlow converts raw input into a GatewayFlow.
func ParseGatewayFlow(value string) (GatewayFlow, error) {
	return parseEnum(validGatewayFlows, value, "gateway flow")
}
