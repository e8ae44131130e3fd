package service

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/kirsrus/checkin/server/model"
)

// PrintTransport доставка этикетки на принтер по его адресу
//go:generate mockery --dir . --name PrintTransport --output ./mocks
type PrintTransport interface {
	// Отправляет данные на принтер. Должен учитывать отмену ctx
	Print(ctx context.Context, address string, data []byte) error
}

// PrinterProxySvc сервис облачных прокси печати. Держит по одному актуальному соединению на устройство
//go:generate mockery --dir . --name PrinterProxySvc --output ./mocks
type PrinterProxySvc interface {
	// Обслуживает соединение conn устройства device до его закрытия или отмены ctx
	Serve(ctx context.Context, conn *websocket.Conn, device model.Device) error
	// Отправляет задание печати через прокси deviceID и ожидает подтверждения
	Print(ctx context.Context, deviceID uint, address string, data []byte) error
	// Идентификаторы подключённых устройств
	Connected() []uint
}

// AttendanceFeed рассылка событий регистрации подписчикам
//go:generate mockery --dir . --name AttendanceFeed --output ./mocks
type AttendanceFeed interface {
	Publish(event model.AttendanceEvent)
}

// WebSvc сервис общения с WEB интерфейсом
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	AttendanceFeed
	// Запуск WEB-сервера до отмены ctx
	Serve(ctx context.Context) error
}

// BeaconSvc приём телеметрии маяков
//go:generate mockery --dir . --name BeaconSvc --output ./mocks
type BeaconSvc interface {
	Serve(ctx context.Context) error
}

// DiscoverySvc анонс сервера в локальной сети
//go:generate mockery --dir . --name DiscoverySvc --output ./mocks
type DiscoverySvc interface {
	Serve(ctx context.Context) error
}
