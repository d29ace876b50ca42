package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"chat_server/server/common/infra/cache"
	"chat_server/server/common/infra/db"
	"chat_server/server/common/infra/mq"
	"chat_server/server/realtime/api"
	"chat_server/server/realtime/repository"
	"chat_server/server/realtime/service"
)

type Server struct {
	HTTPServer *http.Server
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Rooms      *service.Router
	Publisher  *service.EventPublisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	userRepo := repository.NewUserRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	callRepo := repository.NewCallRepository(pool)
	friendRepo := repository.NewFriendRepository(pool)

	registry := service.NewRegistry()
	rooms := service.NewRouter(registry)

	var redisClient *redis.Client
	if cfg.UseRedis {
		redisClient = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		rooms.UseRedis(redisClient)
		if err := rooms.StartRedisSubscriber(context.Background()); err != nil {
			return nil, fmt.Errorf("start redis subscriber: %w", err)
		}
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.EventPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		publisher, err = service.NewEventPublisher(mqConn)
		if err != nil {
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
	}

	dispatcher := service.NewDispatcher(rooms, nil)
	if publisher != nil {
		dispatcher = service.NewDispatcher(rooms, publisher)
	}

	heartbeatTimeout := time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second
	presence := service.NewPresenceTracker(registry, rooms, userRepo, friendRepo, heartbeatTimeout)
	delivery := service.NewDeliveryTracker(messageRepo, rooms)
	calls := service.NewCallCoordinator(rooms, groupRepo, messageRepo, dispatcher, callRepo)
	friends := service.NewFriendService(friendRepo, dispatcher)
	messaging := service.NewMessagingService(messageRepo, groupRepo, dispatcher)
	ws := service.NewRealtimeService(presence, rooms, delivery, calls, friends, groupRepo)

	h := api.NewHandler(messaging, calls, friends, dispatcher, ws, userRepo, cfg.JWTSecret, cfg.JWTTTLMinutes)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		Pool:       pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		Rooms:      rooms,
		Publisher:  publisher,
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Rooms.StopRedisSubscriber()
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
