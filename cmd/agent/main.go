package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/config"
	"github.com/gns-x/SafeDrop/module/pickup"
	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := config.NewLogger(cfg)

	viewer := domain.Viewer{UserID: cfg.UserID, Role: domain.Role(cfg.UserRole), Grade: cfg.UserGrade}
	if viewer.UserID == "" || !viewer.Role.Valid() {
		log.WithFields(logrus.Fields{"user_id": viewer.UserID, "role": viewer.Role}).Fatal("USER_ID and a valid USER_ROLE are required")
	}

	amqpConn, err := config.NewRabbitMQ(cfg, log)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = amqpConn.Close() }()

	online := &config.OnlineSignal{}
	mqttClient, err := config.NewMQTT(cfg, log, online)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer mqttClient.Disconnect(250)

	pickupModule, err := pickup.Build(amqpConn, mqttClient, pickup.Options{
		Viewer: viewer,
		Token:  cfg.AuthToken,
		WSURL:  cfg.WSURL,
		APIURL: cfg.APIURL,
		Zone: domain.SchoolZone{
			Center:       domain.GeoPoint{Latitude: cfg.SchoolLatitude, Longitude: cfg.SchoolLongitude},
			RadiusMeters: cfg.SchoolRadius,
		},
		HandshakeTimeout:     cfg.WSHandshakeTimeout,
		ReconnectDelay:       cfg.WSReconnectDelay,
		MaxReconnectAttempts: cfg.WSMaxReconnectAttempts,
		LocationMaxAge:       cfg.LocationMaxAge,
		RosterTimeout:        cfg.RosterTimeout,
	}, log)
	if err != nil {
		log.Fatalf("pickup module: %v", err)
	}
	defer pickupModule.Shutdown()

	online.Subscribe(pickupModule.NotifyOnline)

	if err := pickupModule.StartSubscribers(); err != nil {
		log.Fatalf("start subscribers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pickupModule.LoadRoster(ctx)
	if err := pickupModule.Connect(ctx); err != nil {
		log.WithError(err).Warn("initial realtime connect failed, retrying in background")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	health := config.NewHealthChecker(pickupModule, amqpConn, mqttClient)
	health.Register(r)

	pickupModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		log.Infof("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}
