package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/commercekit/orderflow/internal/aws"
	"github.com/commercekit/orderflow/internal/collaborators"
	"github.com/commercekit/orderflow/internal/logging"
	"github.com/commercekit/orderflow/internal/orders"
	"github.com/commercekit/orderflow/internal/saga"
)

func main() {
	logger := logging.New()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	orderStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"), os.Getenv("ORDER_HISTORY_TABLE"))
	sagaStore := saga.NewDynamoStore(clients.DynamoDB, os.Getenv("SAGA_TABLE"))

	collabTimeout := 10 * time.Second
	coordinator := saga.NewCoordinator(saga.Config{
		Log:       logger,
		States:    sagaStore,
		Orders:    orderStore,
		Cart:      collaborators.NewCart(os.Getenv("CART_SERVICE_URL"), collabTimeout),
		Inventory: collaborators.NewInventory(os.Getenv("INVENTORY_SERVICE_URL"), collabTimeout),
		Payment:   collaborators.NewPayment(os.Getenv("PAYMENT_SERVICE_URL"), collabTimeout),
		Shipping:  collaborators.NewShipping(os.Getenv("SHIPPING_SERVICE_URL"), collabTimeout),
		Metrics:   aws.NewMetricsEmitter(clients.CloudWatch, "OrderFlow"),
		Alerts:    aws.NewPublisher(clients.SQS, os.Getenv("RECONCILIATION_QUEUE_URL")),
	})

	p := NewProcessor(logger, coordinator)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"kind":"resume","order_id":"local-order-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
