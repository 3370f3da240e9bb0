package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"beegreen/auth"
	"beegreen/internal/config"
	"beegreen/internal/correlator"
	"beegreen/internal/db"
	"beegreen/internal/devices"
	"beegreen/internal/discovery"
	"beegreen/internal/engine"
	"beegreen/internal/models"
	"beegreen/internal/mqtt"
	"beegreen/internal/notify"
	"beegreen/internal/redis"
	"beegreen/internal/schedule"
	"beegreen/internal/scheduler"
	"beegreen/internal/storage"
	"beegreen/internal/storage/bolt"
	"beegreen/internal/taskqueue"
	"beegreen/internal/utils"
	"beegreen/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password for jwt.password_hash and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.InitLogging(cfg.App.LogLevel)

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	registry, closeRegistry, err := openRegistry(cfg, kv)
	if err != nil {
		log.Fatalf("Failed to open device registry: %v", err)
	}
	defer closeRegistry()

	notifier, workers, err := buildNotifier(cfg)
	if err != nil {
		log.Fatalf("Failed to set up notifications: %v", err)
	}
	if qn, ok := notifier.(*taskqueue.QueueNotifier); ok {
		defer qn.Close()
	}
	if workers != nil {
		if err := workers.Start(); err != nil {
			log.Fatalf("Failed to start task queue workers: %v", err)
		}
		defer workers.Stop()
	}

	broker := discovery.ResolveBroker(context.Background(), cfg.MQTT.Broker)
	var eng *engine.Engine
	mqttClient := mqtt.NewMQTTClient(mqtt.Options{
		Broker:             broker,
		ClientID:           cfg.MQTT.ClientID,
		Username:           cfg.MQTT.Username,
		Password:           cfg.MQTT.Password,
		TLS:                cfg.MQTT.TLS,
		InsecureSkipVerify: cfg.MQTT.InsecureSkipVerify,
		QoS:                byte(cfg.MQTT.QoS),
		ConnectTimeout:     cfg.MQTT.ConnectTimeout,
	}, mqtt.Handlers{
		OnMessage:        func(topic string, payload []byte) { eng.HandleMessage(topic, payload) },
		OnConnect:        func() { eng.OnConnect() },
		OnConnectionLost: func(err error) { eng.OnConnectionLost(err) },
		OnTransportError: func(err error) { eng.OnTransportError(err) },
	})

	eng = engine.New(mqttClient, schedule.NewStore(kv), registry, engine.Options{
		Notifier:         notifier,
		RefreshDelay:     cfg.Sync.RefreshDelay,
		StaleAfter:       cfg.Sync.StaleAfter,
		NextRunTimeout:   cfg.Sync.NextRunTimeout,
		SchedulesTimeout: cfg.Sync.SchedulesTimeout,
	})

	sched := scheduler.NewScheduler(cfg.Sync.PollSpec, func(deviceID string) {
		if err := eng.RequestNextRun(deviceID); err != nil && !errors.Is(err, correlator.ErrBusy) {
			log.Printf("SCHEDULER: Next-run refresh for %s failed: %v", deviceID, err)
		}
	})
	eng.OnEvent(func(ev engine.Event) {
		switch {
		case ev.Type == engine.EventDevices:
			sched.SyncDevices(eng.ActiveDeviceIDs())
		case ev.Type == engine.EventStatus && ev.Status == models.StatusOnline.String():
			// next run may have moved while the device was away
			sched.RunNow(ev.DeviceID)
		}
	})
	sched.Start()
	defer sched.Stop()

	if err := mqttClient.Connect(); err != nil {
		log.Fatalf("Failed to connect to MQTT: %v", err)
	}
	defer mqttClient.Disconnect()
	if err := eng.RefreshDevices(context.Background()); err != nil {
		log.Fatalf("Failed to load devices: %v", err)
	}

	var authModule *auth.AuthModule
	if cfg.JWT.Enabled {
		authModule = auth.NewAuthModule(cfg.JWT.Secret, cfg.JWT.Username, cfg.JWT.PasswordHash)
	}
	webServer := web.NewWebServer(eng, authModule)
	go func() {
		if err := webServer.Start(fmt.Sprintf(":%d", cfg.App.Port)); err != nil {
			log.Fatalf("Web server stopped: %v", err)
		}
	}()

	if cfg.MDNS.Enabled {
		conn, err := discovery.Advertise(cfg.MDNS.LocalName)
		if err != nil {
			log.Println("Failed to start mDNS server:", err)
		} else {
			defer conn.Close()
		}
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down")
}

func openStore(cfg *config.Config) (storage.KV, error) {
	var kv storage.KV
	switch cfg.Storage.Backend {
	case "memory":
		kv = storage.NewMemory()
	case "redis":
		kv = redis.NewStore(redis.NewRedisClient(cfg.Redis.Addr))
	default:
		store, err := bolt.New(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		kv = store
	}
	if cfg.Storage.Secret == "" {
		return kv, nil
	}
	sealed, err := storage.NewSealed(kv, cfg.Storage.Secret)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return sealed, nil
}

func openRegistry(cfg *config.Config, kv storage.KV) (devices.Registry, func(), error) {
	if cfg.Database.URL == "" {
		return devices.NewKVRegistry(kv), func() {}, nil
	}
	dbConn, err := db.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := dbConn.EnsureSchema(context.Background()); err != nil {
		dbConn.Close(context.Background())
		return nil, nil, err
	}
	return dbConn, func() { dbConn.Close(context.Background()) }, nil
}

func buildNotifier(cfg *config.Config) (notify.Notifier, *taskqueue.Workers, error) {
	var sender notify.Sender = notify.LogSender{}
	if cfg.Notify.Backend == "bark" {
		bark, err := notify.NewBarkSender(cfg.Notify.Bark.URL, cfg.Notify.Bark.DeviceKey, cfg.Notify.Bark.Group, cfg.Notify.Timeout)
		if err != nil {
			return nil, nil, err
		}
		sender = bark
	}
	if !cfg.Notify.Queue {
		return notify.Async{Sender: sender, Timeout: cfg.Notify.Timeout}, nil, nil
	}
	return taskqueue.NewQueueNotifier(cfg.Redis.Addr), taskqueue.NewWorkers(cfg.Redis.Addr, sender), nil
}
