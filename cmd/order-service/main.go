package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"storefront/internal/idempotency"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/zookeeper"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/interfaces"
)

const servicePort = 8081

func main() {
	runCtx, cancel := context.WithCancel(context.Background())

	var (
		responder *mq.Responder
		notifier  *adapter.KafkaNotifier
		zkConn    *zookeeper.Conn
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: "order-service",
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := bootstrap.GetCurrentConfig()
			tracer := otel.Tracer("order-service")

			db, err := gorm.Open(mysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{})
			if err != nil {
				logger.L().Fatal().Err(err).Msg("mysql connection failed")
			}
			if err := db.AutoMigrate(
				&infrastructure.OrderModel{},
				&infrastructure.OrderItemModel{},
				&idempotency.Record{},
			); err != nil {
				logger.L().Fatal().Err(err).Msg("migration failed")
			}

			client := httpclient.NewClient(tracer, appCtx.Nacos)
			notifier = adapter.NewKafkaNotifier(cfg.Infra.Kafka.Brokers)
			ledger := idempotency.NewStore(db)

			svc := application.NewService(
				infrastructure.NewGormRepository(db),
				ledger,
				adapter.NewIdentityAdapter(client, cfg),
				adapter.NewCartAdapter(client, cfg),
				adapter.NewCatalogAdapter(client, cfg),
				adapter.NewPaymentAdapter(client, cfg),
				notifier,
				application.Pricing{
					TaxRate:        cfg.Order.TaxRate,
					ShippingFee:    cfg.Order.ShippingFee,
					PaymentEpsilon: cfg.Order.PaymentEpsilon,
				},
				tracer,
			)

			handler := interfaces.NewCommandHandler(svc, tracer)
			responder = mq.NewResponder(
				cfg.Infra.Kafka.Brokers,
				constants.OrderCommandsTopic,
				constants.OrderCommandsGroup,
				handler.Handle,
			)
			responder.Start(runCtx)

			zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
			if err != nil {
				logger.L().Fatal().Err(err).Msg("zookeeper connection failed")
			}
			lock, err := zookeeper.NewDistributedLock(zkConn, "idempotency-sweep-order")
			if err != nil {
				logger.L().Fatal().Err(err).Msg("sweep lock setup failed")
			}
			janitor := idempotency.NewJanitor(ledger, lock, cfg.Idempotency.SweepInterval, cfg.Idempotency.Retention)
			go janitor.Run(runCtx)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancel()
				if responder != nil {
					responder.Close()
				}
				if notifier != nil {
					notifier.Close()
				}
				if zkConn != nil {
					zkConn.Close()
				}
			},
		},
	})
}
