package api

import (
	"context"
	"net/http"
)

// PaymentConfirmation is the payload the gateway's checkout popup hands back
// to the client. The client forwards it verbatim; the backend verifies the
// signature and captures the payment.
type PaymentConfirmation struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// SubscriptionOrder is the server-issued order the checkout popup is opened
// with.
type SubscriptionOrder struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateSubscriptionOrder asks the backend for a checkout order covering the
// given plan.
func (c *Client) CreateSubscriptionOrder(ctx context.Context, planID string) (*SubscriptionOrder, error) {
	payload := map[string]string{"plan_id": planID}

	var body struct {
		Order *SubscriptionOrder `json:"order"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/payments/orders", payload, &body); err != nil {
		return nil, err
	}
	return body.Order, nil
}

// VerifyPayment forwards a gateway confirmation to the backend. A business
// rejection (tampered signature, unknown order) surfaces as *APIError.
func (c *Client) VerifyPayment(ctx context.Context, confirmation PaymentConfirmation) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/payments/verify", confirmation, nil)
}
