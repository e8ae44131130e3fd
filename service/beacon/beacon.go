// Package beacon приём событий маяков персональных устройств через MQTT.
//
// Устройство публикует JSON-событие в топик вида checkin/proximity/<ключ устройства>.
// Ключ из топика имеет приоритет над полем personalDeviceId сообщения. Сообщение несёт
// токен устройства в поле token, ключ в токене должен совпадать с ключом события
package beacon

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/controller"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/devtoken"
	"github.com/kirsrus/checkin/server/service"
)

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 5 * time.Second
	defaultTopic   = "checkin/proximity/+"
)

var _ service.BeaconSvc = (*Beacon)(nil)

// ConfigBeacon конфигурация Beacon
type ConfigBeacon struct {
	Log *logrus.Logger

	Handler controller.ProximityCtl

	// Адрес брокера, например tcp://127.0.0.1:1883 или ssl://broker:8883
	Broker   string
	ClientID string
	Username string
	Password string
	// Топик подписки, последний сегмент - ключ устройства
	Topic string

	// Секрет подписи токенов персональных устройств (пусто - события отклоняются)
	JwtSecret string
}

// Beacon подписчик MQTT. Инициируется через NewBeacon
type Beacon struct {
	log      *logrus.Entry
	handler  controller.ProximityCtl
	broker   string
	clientID string
	username string
	password string
	topic    string

	jwtSecret []byte
}

// Сообщение устройства: событие и токен
type message struct {
	model.ProximityEvent
	Token string `json:"token"`
}

// NewBeacon конструктор Beacon
func NewBeacon(config ConfigBeacon) (*Beacon, error) {
	if config.Handler == nil {
		return nil, errors.New("не передан обработчик событий")
	}
	if config.Broker == "" {
		return nil, errors.New("не задан адрес брокера")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	res := Beacon{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "beacon",
			"scope":  "service",
		}),
		handler:  config.Handler,
		broker:   config.Broker,
		clientID: config.ClientID,
		username: config.Username,
		password: config.Password,
		topic:    config.Topic,

		jwtSecret: []byte(config.JwtSecret),
	}
	if len(res.jwtSecret) == 0 {
		res.log.Warn("не задан секрет токенов: события маяков будут отклоняться")
	}
	if res.topic == "" {
		res.topic = defaultTopic
	}
	if res.clientID == "" {
		res.clientID = "checkin-server"
	}
	return &res, nil
}

// Serve подключается к брокеру и обрабатывает события до отмены ctx
func (m *Beacon) Serve(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout)
	if m.username != "" {
		opts.SetUsername(m.username)
		opts.SetPassword(m.password)
	}

	// После переподключения подписка восстанавливается
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		token := client.Subscribe(m.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			m.handle(ctx, msg.Topic(), msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			m.log.Errorf("ошибка подписки на %s: %v", m.topic, err)
			return
		}
		m.log.Infof("подписка на %s у брокера %s", m.topic, m.broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warnf("потеряно соединение с брокером: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.Annotatef(err, "подключение к брокеру %s", m.broker)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	client.Disconnect(250)
	m.log.Info("отключение от брокера")
	return nil
}

// Обработка одного сообщения. Ошибки только логируются: ответить устройству некуда
func (m *Beacon) handle(ctx context.Context, topic string, payload []byte) {
	log := m.log.WithField("topic", topic)

	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warnf("некорректное событие: %v", err)
		return
	}
	event := msg.ProximityEvent
	if i := strings.LastIndex(topic, "/"); i >= 0 && i < len(topic)-1 {
		event.PersonalDeviceID = topic[i+1:]
	}
	deviceKey, err := devtoken.Verify(m.jwtSecret, msg.Token)
	if err != nil {
		log.Info(err)
		return
	}
	if event.PersonalDeviceID == "" {
		event.PersonalDeviceID = deviceKey
	}
	if event.PersonalDeviceID != deviceKey {
		log.Infof("токен выдан устройству %s, а не %s", deviceKey, event.PersonalDeviceID)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	changed, err := m.handler.HandleEvent(hctx, event)
	switch {
	case errors.IsNotValid(err), errors.IsUnauthorized(err), errors.IsNotFound(err):
		log.Info(err)
	case err != nil:
		log.Error(errors.ErrorStack(err))
	case changed:
		log.Debugf("устройство %s: посещаемость изменена", event.PersonalDeviceID)
	}
}
