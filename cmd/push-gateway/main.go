package main

import (
	"context"

	"github.com/google/uuid"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/session"
	"storefront/internal/pushgateway"
)

const servicePort = 8083

func main() {
	runCtx, cancel := context.WithCancel(context.Background())
	nodeID := uuid.New().String()[:8]

	var (
		hub      *pushgateway.Hub
		consumer *pushgateway.Consumer
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: "push-gateway",
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := bootstrap.GetCurrentConfig()

			hub = pushgateway.NewHub()
			go hub.Run()

			sessions := session.NewManager(cfg.Infra.Redis.Addr)
			consumer = pushgateway.NewConsumer(cfg.Infra.Kafka.Brokers, hub, sessions, nodeID)
			go consumer.Run(runCtx)

			appCtx.Mux.HandleFunc("/ws", pushgateway.ServeWS(hub, sessions, nodeID))
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancel()
				if consumer != nil {
					consumer.Close()
				}
				if hub != nil {
					hub.Stop()
				}
			},
		},
	})
}
