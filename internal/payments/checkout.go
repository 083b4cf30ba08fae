// Package payments drives the subscription checkout: the backend issues an
// order, the gateway's checkout surface collects the payment, and the
// resulting confirmation is forwarded back for verification and capture.
package payments

import (
	"context"
	"fmt"

	"github.com/abin98anto/skillforge-client/internal/api"
)

// Gateway opens the provider's checkout surface for an order and blocks
// until the user completes or abandons it. In the browser this is the
// provider popup; tests stub it.
type Gateway interface {
	Checkout(ctx context.Context, order api.SubscriptionOrder) (api.PaymentConfirmation, error)
}

type backendClient interface {
	CreateSubscriptionOrder(ctx context.Context, planID string) (*api.SubscriptionOrder, error)
	VerifyPayment(ctx context.Context, confirmation api.PaymentConfirmation) error
}

type Service struct {
	client  backendClient
	gateway Gateway
}

func NewService(client backendClient, gateway Gateway) *Service {
	return &Service{client: client, gateway: gateway}
}

// Subscribe runs the full checkout for a plan. Every failure is surfaced to
// the caller for a user-driven retry; nothing is retried automatically.
func (s *Service) Subscribe(ctx context.Context, planID string) error {
	order, err := s.client.CreateSubscriptionOrder(ctx, planID)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	confirmation, err := s.gateway.Checkout(ctx, *order)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if confirmation.OrderID == "" {
		confirmation.OrderID = order.OrderID
	}

	if err := s.client.VerifyPayment(ctx, confirmation); err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	return nil
}
