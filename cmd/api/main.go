package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/commercekit/orderflow/internal/aws"
	"github.com/commercekit/orderflow/internal/collaborators"
	"github.com/commercekit/orderflow/internal/handlers"
	"github.com/commercekit/orderflow/internal/idempotency"
	"github.com/commercekit/orderflow/internal/logging"
	"github.com/commercekit/orderflow/internal/orders"
	"github.com/commercekit/orderflow/internal/saga"
	"github.com/commercekit/orderflow/internal/service"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	logger := logging.New()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	tokenStore := idempotency.NewStore(clients.DynamoDB, os.Getenv("IDEMPOTENCY_TABLE"), envDuration("IDEMPOTENCY_TTL", 48*time.Hour))
	guard := idempotency.NewGuard(tokenStore, idempotency.GuardConfig{
		Window:    envDuration("RATE_LIMIT_WINDOW", 10*time.Minute),
		MaxActive: envInt("RATE_LIMIT_MAX_ACTIVE", 10),
	})
	orderStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"), os.Getenv("ORDER_HISTORY_TABLE"))
	sagaStore := saga.NewDynamoStore(clients.DynamoDB, os.Getenv("SAGA_TABLE"))

	collabTimeout := envDuration("COLLABORATOR_TIMEOUT", 10*time.Second)
	coordinator := saga.NewCoordinator(saga.Config{
		Log:         logger,
		States:      sagaStore,
		Orders:      orderStore,
		Cart:        collaborators.NewCart(os.Getenv("CART_SERVICE_URL"), collabTimeout),
		Inventory:   collaborators.NewInventory(os.Getenv("INVENTORY_SERVICE_URL"), collabTimeout),
		Payment:     collaborators.NewPayment(os.Getenv("PAYMENT_SERVICE_URL"), collabTimeout),
		Shipping:    collaborators.NewShipping(os.Getenv("SHIPPING_SERVICE_URL"), collabTimeout),
		Metrics:     aws.NewMetricsEmitter(clients.CloudWatch, "OrderFlow"),
		Alerts:      aws.NewPublisher(clients.SQS, os.Getenv("RECONCILIATION_QUEUE_URL")),
		MaxAttempts: envInt("SAGA_MAX_ATTEMPTS", 3),
		StepTimeout: collabTimeout,
	})

	svc := service.NewService(logger, tokenStore, guard, orderStore, coordinator)

	r := setupRouter(handlers.HandlerConfig{
		Service: svc,
		Sagas:   sagaStore,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
