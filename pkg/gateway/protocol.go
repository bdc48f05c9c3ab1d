package gateway

import (
	"encoding/json"
)

// Version is the only accepted value of the jsonrpc member
const Version = "2.0"

// Method is a command name. The set is closed: ParseMethod rejects
// everything not listed here.
type Method string

const (
	MethodGetMenu           Method = "getMenu"
	MethodPlaceOrder        Method = "placeOrder"
	MethodGetOrderStatus    Method = "getOrderStatus"
	MethodListOrders        Method = "listOrders"
	MethodAcceptOrder       Method = "acceptOrder"
	MethodUpdateOrderStatus Method = "updateOrderStatus"
	MethodConfirmPayment    Method = "confirmPayment"
	MethodGetAnalytics      Method = "getAnalytics"
)

// Methods lists every supported command
var Methods = []Method{
	MethodGetMenu,
	MethodPlaceOrder,
	MethodGetOrderStatus,
	MethodListOrders,
	MethodAcceptOrder,
	MethodUpdateOrderStatus,
	MethodConfirmPayment,
	MethodGetAnalytics,
}

// ParseMethod resolves a command name. Matching is exact.
func ParseMethod(s string) (Method, bool) {
	for _, m := range Methods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Request is one JSON-RPC 2.0 call
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is the envelope for one call. Exactly one of Result and Error is
// set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a Response
type Error struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Params of the individual commands

type orderIDParams struct {
	OrderID string `json:"orderId"`
}

type listOrdersParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type updateStatusParams struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type confirmPaymentParams struct {
	OrderID    string `json:"orderId"`
	PaymentRef string `json:"paymentRef"`
}
