package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/abin98anto/skillforge-client/internal/api"
)

type stubClient struct {
	order     *api.SubscriptionOrder
	orderErr  error
	verifyErr error
	verified  []api.PaymentConfirmation
}

func (s *stubClient) CreateSubscriptionOrder(_ context.Context, planID string) (*api.SubscriptionOrder, error) {
	return s.order, s.orderErr
}

func (s *stubClient) VerifyPayment(_ context.Context, confirmation api.PaymentConfirmation) error {
	s.verified = append(s.verified, confirmation)
	return s.verifyErr
}

type stubGateway struct {
	confirmation api.PaymentConfirmation
	err          error
	seenOrder    api.SubscriptionOrder
}

func (s *stubGateway) Checkout(_ context.Context, order api.SubscriptionOrder) (api.PaymentConfirmation, error) {
	s.seenOrder = order
	return s.confirmation, s.err
}

func TestSubscribeForwardsConfirmation(t *testing.T) {
	client := &stubClient{
		order: &api.SubscriptionOrder{OrderID: "ord-1", Amount: 4999, Currency: "INR"},
	}
	gateway := &stubGateway{
		confirmation: api.PaymentConfirmation{PaymentID: "pay-1", Signature: "sig"},
	}
	service := NewService(client, gateway)

	if err := service.Subscribe(context.Background(), "plan-pro"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if gateway.seenOrder.OrderID != "ord-1" {
		t.Fatalf("gateway opened with wrong order: %+v", gateway.seenOrder)
	}
	if len(client.verified) != 1 || client.verified[0].OrderID != "ord-1" || client.verified[0].PaymentID != "pay-1" {
		t.Fatalf("unexpected forwarded confirmation: %+v", client.verified)
	}
}

func TestSubscribeAbandonedCheckoutNotForwarded(t *testing.T) {
	client := &stubClient{order: &api.SubscriptionOrder{OrderID: "ord-1"}}
	gateway := &stubGateway{err: errors.New("popup dismissed")}
	service := NewService(client, gateway)

	if err := service.Subscribe(context.Background(), "plan-pro"); err == nil {
		t.Fatal("expected error")
	}
	if len(client.verified) != 0 {
		t.Fatal("abandoned checkout must not be forwarded for verification")
	}
}
