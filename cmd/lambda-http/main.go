package main

// The import API runs behind an API Gateway HTTP API:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=1 go build -o bootstrap ./cmd/lambda-http
// CGO is required by the MuPDF renderer used for barcode decoding.

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"letters-backend/internal/bootstrap"
	"letters-backend/internal/shared/config"
	"letters-backend/internal/shared/server/respond"
	"letters-backend/internal/shared/telemetry"
)

type proxy interface {
	ProxyWithContext(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)
}

var (
	initOnce sync.Once
	initErr  error
	router   proxy
)

func initApp() {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		initErr = err
		return
	}
	router = ginadapter.NewV2(app.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	return serve(ctx, router, initErr, req)
}

// serve answers with a JSON error while the app cannot be built. The init
// error is returned so Lambda recycles the sandbox.
func serve(ctx context.Context, p proxy, bootErr error, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if bootErr != nil {
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{
			"error":      bootErr.Error(),
			"route":      req.RouteKey,
			"request_id": req.RequestContext.RequestID,
		})
		return errorResponse("bootstrap_failed", "service is starting up"), bootErr
	}
	if p == nil {
		return errorResponse("internal", "router not initialized"), nil
	}
	return p.ProxyWithContext(ctx, req)
}

func errorResponse(code, message string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       respond.Body(code, message),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start(handler)
}
