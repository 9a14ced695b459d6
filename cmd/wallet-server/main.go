package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"wallet-signer/internal/handler"
	"wallet-signer/internal/model"
	"wallet-signer/internal/porter"
	"wallet-signer/internal/repo"
	"wallet-signer/internal/server"
	"wallet-signer/internal/service"
	"wallet-signer/internal/service/account"
	"wallet-signer/internal/service/activity"
	"wallet-signer/internal/service/approval"
	"wallet-signer/internal/service/mq"
	"wallet-signer/internal/service/nonce"
	"wallet-signer/internal/service/rpc"
	"wallet-signer/internal/service/wallet"
	"wallet-signer/internal/vault"
	"wallet-signer/internal/worker"

	"wallet-signer/pkg/config"
	"wallet-signer/pkg/database"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/validator"
	"wallet-signer/pkg/wallet/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	_ "wallet-signer/docs/swagger"
)

// @title Wallet Signer API
// @version 1.0
// @description Local operator API of the wallet transaction approval and signing service.

// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	validator.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 存储层
	var db *gorm.DB
	if config.Global.DB.Driver == "postgres" {
		var err error
		dsn := database.PostgresDSN(config.Global.DB.Host, config.Global.DB.Port,
			config.Global.DB.User, config.Global.DB.Password, config.Global.DB.Name)
		db, err = database.ConnectPostgres(dsn, config.Global.App.Env == "development")
		if err != nil {
			logger.Fatal("[Main] 数据库连接失败", zap.Error(err))
		}

		if config.Global.App.Env == "development" {
			logger.Info("[Main] 开发环境: 自动迁移 Schema (GORM AutoMigrate)...")
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				logger.Fatal("[Main] 数据库自动迁移失败", zap.Error(err))
			}
		} else {
			logger.Info("[Main] 生产环境: 跳过 AutoMigrate, 请使用 migrate 工具管理 Schema")
		}
	} else {
		logger.Info("[Main] 使用内存存储, 重启后数据丢失")
	}

	accountRepo := mustRepo[model.Account](db)
	nonceRepo := mustRepo[model.Nonce](db)
	activityRepo := mustRepo[model.Activity](db)

	// 3. 消息队列 / 异步任务
	var rdb *redis.Client
	var producer mq.Producer
	switch config.Global.Redis.MQType {
	case "kafka":
		logger.Info("[Main] 使用 Kafka 发布活动事件...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
	case "redis":
		logger.Info("[Main] 使用 Redis Streams 发布活动事件...")
		rdb = mustRedis()
		producer = mq.NewRedisProducer(rdb)
	}

	logOpts := []activity.Option{}
	if producer != nil {
		logOpts = append(logOpts, activity.WithProducer(producer))
	}
	var taskClient *worker.Client
	if config.Global.Worker.Enabled {
		taskClient = worker.NewClient(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
		logOpts = append(logOpts, activity.WithRetryQueue(taskClient))
	}
	activityLog := activity.NewLog(activityRepo, logOpts...)

	var taskServer *worker.Server
	if config.Global.Worker.Enabled {
		taskServer = worker.NewServer(config.Global.Redis.Addr, config.Global.Redis.Password,
			config.Global.Redis.DB, config.Global.Worker.Concurrency, activityLog)
		taskServer.Start()
	}

	// 4. 钱包核心
	// 未接入硬件设备时, 硬件账户签名返回 DeviceRejected
	v, err := vault.New(config.Global.Wallet.KeystorePath,
		vault.WithDevice(nil, config.Global.Wallet.DeviceTimeout))
	if err != nil {
		logger.Fatal("[Main] 加载 vault 失败", zap.Error(err))
	}
	accounts := account.NewRegistry(accountRepo)
	mediator := rpc.NewMediator(config.Global.RpcEndpoints())

	if config.Global.BlockTxSend() {
		logger.Warn("[Main] 开发环境已开启 WALLET_DEV_BLOCK_TX_SEND, 所有交易将在广播前被拒绝")
	}
	store := approval.NewStore()
	processor := approval.NewProcessor(store, approval.Deps{
		Accounts:    accounts,
		Vault:       v,
		RPC:         mediator,
		Nonces:      nonce.NewTracker(nonceRepo),
		Log:         activityLog,
		BlockTxSend: config.Global.BlockTxSend(),
	})
	background := wallet.NewBackground(v, accounts, store, processor)

	// 5. 前台通道
	porterServer := porter.NewServer(types.PorterChannel, background.Handle)
	go func() {
		if err := background.ForwardEvents(ctx, porterServer); err != nil {
			logger.Error("[Main] 事件转发退出", zap.Error(err))
		}
	}()

	cron := service.NewCronService(v, config.Global.Wallet.AutoLock)
	cron.Start()

	// 6. HTTP Router
	r := server.NewHTTPRouter(handler.NewApprovalHandler(v, store, processor, activityLog))

	// 7. gRPC Server
	grpcServer := grpc.NewServer()
	porter.RegisterGRPC(ctx, grpcServer, porterServer)

	// 8. 启动应用
	app, err := server.New(server.Config{
		HttpPort: config.Global.App.HttpPort,
		GrpcPort: config.Global.App.GrpcPort,
	}, r, grpcServer)
	if err != nil {
		logger.Fatal("[Main] 应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞)
	app.Run(ctx)

	// 9. 退出后资源清理
	cron.Stop()
	v.Lock()
	mediator.Close()
	if taskServer != nil {
		taskServer.Stop()
	}
	if taskClient != nil {
		taskClient.Close()
	}
	if c, ok := producer.(io.Closer); ok {
		c.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		logger.Info("[Main] 正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Info("[Main] 系统已退出")
}

// mustRepo db 为 nil 时使用内存存储
func mustRepo[T repo.Record](db *gorm.DB) repo.Repository[T] {
	if db == nil {
		return repo.NewMemoryRepository[T]()
	}
	r, err := repo.NewGormRepository[T](db)
	if err != nil {
		logger.Fatal("[Main] 初始化存储失败", zap.Error(err))
	}
	return r
}

func mustRedis() *redis.Client {
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("[Main] Redis 连接失败", zap.Error(err))
	}
	return rdb
}
