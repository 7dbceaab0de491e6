package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"storefront/internal/idempotency"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/zookeeper"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/infrastructure"
	"storefront/internal/service/inventory/interfaces"
)

const servicePort = 8082

func main() {
	runCtx, cancel := context.WithCancel(context.Background())

	var (
		responder *mq.Responder
		rdb       *redis.Client
		zkConn    *zookeeper.Conn
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: "inventory-service",
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := bootstrap.GetCurrentConfig()
			tracer := otel.Tracer("inventory-service")

			db, err := gorm.Open(mysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{})
			if err != nil {
				logger.L().Fatal().Err(err).Msg("mysql connection failed")
			}
			if err := db.AutoMigrate(
				&infrastructure.InventoryModel{},
				&idempotency.Record{},
			); err != nil {
				logger.L().Fatal().Err(err).Msg("migration failed")
			}

			rdb = redis.NewClient(&redis.Options{Addr: cfg.Infra.Redis.Addr})
			ledger := idempotency.NewStore(db)

			svc := application.NewService(
				infrastructure.NewGormRepository(db),
				infrastructure.NewRedisCatalog(rdb),
				ledger,
				tracer,
			)

			handler := interfaces.NewCommandHandler(svc, tracer)
			responder = mq.NewResponder(
				cfg.Infra.Kafka.Brokers,
				constants.InventoryCommandsTopic,
				constants.InventoryCommandsGroup,
				handler.Handle,
			)
			responder.Start(runCtx)

			zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
			if err != nil {
				logger.L().Fatal().Err(err).Msg("zookeeper connection failed")
			}
			lock, err := zookeeper.NewDistributedLock(zkConn, "idempotency-sweep-inventory")
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
				if rdb != nil {
					rdb.Close()
				}
				if zkConn != nil {
					zkConn.Close()
				}
			},
		},
	})
}
