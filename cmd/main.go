package main

import (
	"log"

	"github.com/courseloop/playback-gateway/internal/bridge"
	infra "github.com/courseloop/playback-gateway/internal/infrastructure"
	"github.com/courseloop/playback-gateway/internal/infrastructure/driver"
	"github.com/courseloop/playback-gateway/internal/infrastructure/logging"
	"github.com/courseloop/playback-gateway/internal/infrastructure/uuid"
	ihttp "github.com/courseloop/playback-gateway/internal/interfaces/http"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"github.com/courseloop/playback-gateway/internal/progress"
	"github.com/courseloop/playback-gateway/internal/session"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		log.Fatalf("Failed to create DB connection: %s\n", err)
	}
	logger.Debug("Create db connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
		zap.Any("config", option.Database),
	)

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)

	LessonRepo := lesson.NewLessonRepository(dbConn)
	LessonUseCase := lesson.NewLessonUseCase(LessonRepo)

	ProgressRepo := progress.NewProgressRepository(dbConn, UUIDGenerator)
	Fallback := progress.NewFallbackStore(rdb, option.Progress.FallbackTTL)
	ProgressUseCase := progress.NewProgressUseCase(ProgressRepo, LessonRepo, Fallback)

	var notifier progress.Notifier
	if option.Notification.Enabled {
		notifier = progress.NewKVNotifier(rdb)
	}
	var rewards progress.RewardsClient
	if option.Rewards.BaseURL != "" {
		rewards = progress.NewHTTPRewardsClient(option.Rewards.BaseURL, option.Rewards.CompletionXP)
	}
	Recorder := progress.NewRecorder(ProgressRepo, LessonRepo, Fallback, notifier, rewards, logger)

	Bridge := bridge.New(UUIDGenerator, option.Bridge.PollInterval, logger)
	Manager := session.NewManager(Bridge, LessonUseCase, Recorder, session.MachineConfig{
		ConfirmWindow: option.Bridge.ConfirmWindow,
		LoadTimeout:   option.Bridge.LoadTimeout,
	}, logger)

	ihttp.Serve(dbConn, rdb, option, Manager, ProgressUseCase, logger)
}
