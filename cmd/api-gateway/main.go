package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront/internal/gateway"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/mq"
)

const servicePort = 8080

func main() {
	nodeID := uuid.New().String()[:8]
	var requester *mq.Requester

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: "api-gateway",
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := bootstrap.GetCurrentConfig()
			// Each node owns an exclusive reply topic so replies come home.
			requester = mq.NewRequester(
				cfg.Infra.Kafka.Brokers,
				"gateway.replies."+nodeID,
				"api-gateway-"+nodeID,
			)
			gateway.NewHandler(requester, 15*time.Second).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				if requester != nil {
					requester.Close()
				}
			},
		},
	})
}
