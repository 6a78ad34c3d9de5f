package notification

import "github.com/trezcool/masomo-chat/core/device"

// ErrorCode classifies a failed push delivery.
type ErrorCode string

const (
	// CodeTokenInvalid means the gateway no longer knows the token: it gets deactivated.
	CodeTokenInvalid ErrorCode = "token_invalid"
	// CodeTokenMalformed means the token failed the local sanity check and was never sent.
	CodeTokenMalformed ErrorCode = "token_malformed"
	// CodeGatewayTransient covers every other failure. The token stays active and nothing is retried.
	CodeGatewayTransient ErrorCode = "gateway_transient"
)

// IsTokenFailure reports whether the token itself is at fault (and should be deactivated).
func (c ErrorCode) IsTokenFailure() bool {
	return c == CodeTokenInvalid || c == CodeTokenMalformed
}

// Delivery is the outcome of one push send.
type Delivery struct {
	UserID    string
	Token     string
	Platform  device.Platform
	Success   bool
	MessageID string
	Code      ErrorCode
	Err       error
}

// BulkResult is the outcome of a bulk push send. PerToken is keyed by token value.
type BulkResult struct {
	Sent     int
	Failed   int
	PerToken map[string]Delivery
}

func (res *BulkResult) add(d Delivery) {
	if res.PerToken == nil {
		res.PerToken = make(map[string]Delivery)
	}
	res.PerToken[d.Token] = d
	if d.Success {
		res.Sent++
	} else {
		res.Failed++
	}
}

// NewBulkResult folds deliveries into a BulkResult.
func NewBulkResult(deliveries ...Delivery) BulkResult {
	res := BulkResult{PerToken: make(map[string]Delivery, len(deliveries))}
	for _, d := range deliveries {
		res.add(d)
	}
	return res
}
