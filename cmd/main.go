package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	checkinCtlMod "github.com/kirsrus/checkin/server/controller/checkin"
	labelCtlMod "github.com/kirsrus/checkin/server/controller/label"
	"github.com/kirsrus/checkin/server/controller/manager"
	proximityCtlMod "github.com/kirsrus/checkin/server/controller/proximity"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/config"
	"github.com/kirsrus/checkin/server/pkg/devtoken"
	"github.com/kirsrus/checkin/server/pkg/logger"
	"github.com/kirsrus/checkin/server/pkg/pin"
	"github.com/kirsrus/checkin/server/service"
	beaconSvcMod "github.com/kirsrus/checkin/server/service/beacon"
	discoverySvcMod "github.com/kirsrus/checkin/server/service/discovery"
	printerSvcMod "github.com/kirsrus/checkin/server/service/printer"
	printProxySvcMod "github.com/kirsrus/checkin/server/service/printproxy"
	webSvcMod "github.com/kirsrus/checkin/server/service/web"
	cacheStoreMod "github.com/kirsrus/checkin/server/store/cache"
	dbStoreMod "github.com/kirsrus/checkin/server/store/db"
	templateStoreMod "github.com/kirsrus/checkin/server/store/template"
)

var (
	cfg *config.Config
	log *logrus.Logger

	configPath  = pflag.StringP("config", "c", config.FileName, "файл конфигурации")
	hashPin     = pflag.String("hash-pin", "", "вывести хэш PIN-кода переопределения для конфигурации и выйти")
	deviceToken = pflag.String("device-token", "", "вывести токен персонального устройства с указанным ключом и выйти")
)

func init() {
	pflag.Parse()
	if *hashPin != "" {
		return
	}
	cfg = config.GetWithPath(*configPath)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	file := cfg.Log.Filename
	if cfg.Log.Path != "" {
		file = cfg.Log.Path + string(os.PathSeparator) + cfg.Log.Filename
	}
	log = logger.GetWithConfig(logger.Config{
		File:    file,
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	if *hashPin != "" {
		hash, err := pin.Hash(*hashPin, pin.DefaultParams)
		if err != nil {
			fmt.Printf("ОШИБКА: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}
	if *deviceToken != "" {
		token, err := devtoken.Sign([]byte(cfg.Jwt.Secret), *deviceToken, 0)
		if err != nil {
			fmt.Printf("ОШИБКА: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	err := run()
	if err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		fmt.Printf("Для подробностей смотри лог: %s/%s\n", cfg.Log.Path, cfg.Log.Filename)
		log.Fatal(errors.ErrorStack(err))
	}
}

// Пересылка событий регистрации в WEB-сервис, который создаётся после контроллеров
type feedRelay struct {
	target service.AttendanceFeed
}

func (m *feedRelay) Publish(event model.AttendanceEvent) {
	if m.target != nil {
		m.target.Publish(event)
	}
}

func run() error {
	// Отлавливаем сигнал завершения работы программы
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// region Настройка БД и справочников

	dbStore, err := dbStoreMod.NewDb(&dbStoreMod.ConfigDb{
		Log:    log,
		DbFile: cfg.Db.Filename,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := dbStore.Close(); err != nil {
			log.Warn(err)
		}
	}()

	refStore, err := cacheStoreMod.NewCache(cacheStoreMod.ConfigCache{
		Log:    log,
		Loader: dbStore,
		Templates: func() ([]model.Configuration, error) {
			return templateStoreMod.LoadDir(cfg.Templates.Path)
		},
		TTL: time.Duration(cfg.Templates.CacheSeconds) * time.Second,
	})
	if err != nil {
		return errors.Trace(err)
	}
	// Ошибки шаблонов выявляются при старте, а не при первой регистрации
	if err := refStore.Refresh(ctx); err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Печать этикеток

	proxySvc := printProxySvcMod.NewProxy(printProxySvcMod.ConfigProxy{
		Log:        log,
		AckTimeout: cfg.Printer.ProxyAckTimeout,
	})
	printRouter, err := printerSvcMod.NewRouter(printerSvcMod.ConfigRouter{
		Log:      log,
		RefStore: refStore,
		Direct: printerSvcMod.NewDirect(printerSvcMod.ConfigDirect{
			Log:         log,
			DialTimeout: cfg.Printer.DialTimeout,
			DefaultPort: cfg.Printer.DefaultPort,
		}),
		Proxy: proxySvc,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Контроллеры регистрации

	feed := &feedRelay{}
	location := cfg.Location()

	checkinCtl, err := checkinCtlMod.NewDirector(checkinCtlMod.ConfigDirector{
		Log:               log,
		DbStore:           dbStore,
		RefStore:          refStore,
		Labels:            labelCtlMod.NewProvider(labelCtlMod.ConfigProvider{Log: log, Deadline: cfg.Checkin.LabelTimeout}),
		Transport:         printRouter,
		Feed:              feed,
		LabelDeadline:     cfg.Checkin.LabelTimeout,
		OverridePinHashes: cfg.Checkin.OverridePinHashes,
		Location:          location,
	})
	if err != nil {
		return errors.Trace(err)
	}

	var proximityCtl *proximityCtlMod.Director
	if cfg.Proximity.ConfigurationID != "" {
		proximityCtl, err = proximityCtlMod.NewDirector(proximityCtlMod.ConfigDirector{
			Log:             log,
			DbStore:         dbStore,
			RefStore:        refStore,
			Feed:            feed,
			ConfigurationID: cfg.Proximity.ConfigurationID,
			Location:        location,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	// endregion
	// region Сервисы

	webSvc, err := webSvcMod.NewWeb(ctx, &webSvcMod.ConfigWeb{
		Log:         log,
		Director:    checkinCtl,
		Proximity:   proximityCtl,
		Proxy:       proxySvc,
		RefStore:    refStore,
		IdKeySecret: cfg.Checkin.IdKeySecret,
		JwtSecret:   cfg.Jwt.Secret,
		WebPort:     cfg.Http.Port,
	})
	if err != nil {
		return errors.Trace(err)
	}
	feed.target = webSvc

	var beaconSvc service.BeaconSvc
	if cfg.Mqtt.Enabled {
		if proximityCtl == nil {
			return errors.New("для приёма событий маяков не задан шаблон регистрации Proximity.ConfigurationID")
		}
		beaconSvc, err = beaconSvcMod.NewBeacon(beaconSvcMod.ConfigBeacon{
			Log:      log,
			Handler:  proximityCtl,
			Broker:   cfg.Mqtt.Broker,
			ClientID: cfg.Mqtt.ClientID,
			Username: cfg.Mqtt.Username,
			Password: cfg.Mqtt.Password,
			Topic:    cfg.Mqtt.Topic,

			JwtSecret: cfg.Jwt.Secret,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	var discoverySvc service.DiscoverySvc
	if cfg.Discovery.Enabled {
		discoverySvc, err = discoverySvcMod.NewDiscovery(discoverySvcMod.ConfigDiscovery{
			Log:      log,
			Instance: cfg.Discovery.Instance,
			Port:     cfg.Http.Port,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(&manager.ConfigManager{
		Log:           log,
		WebSvc:        webSvc,
		BeaconSvc:     beaconSvc,
		DiscoverySvc:  discoverySvc,
		DbStore:       dbStore,
		PendingTTL:    time.Minute * time.Duration(cfg.Checkin.PendingTTL),
		CleanInterval: time.Minute * time.Duration(cfg.Checkin.CleanInterval),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion

	err = managerCtl.Serve(ctx)
	if ctx.Err() != nil {
		log.Info("получена команда на завершение работы программы")
	}
	return errors.Trace(err)
}
