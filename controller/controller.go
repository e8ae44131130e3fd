package controller

import (
	"context"

	"github.com/kirsrus/checkin/server/model"
)

// ProximityCtl контроллер автоматической регистрации по маякам
//go:generate mockery --dir . --name ProximityCtl --output ./mocks
type ProximityCtl interface {
	// Обрабатывает событие персонального устройства. Возвращает true, если посещаемость
	// изменилась, false - если подходящего помещения или открытого посещения нет
	HandleEvent(ctx context.Context, event model.ProximityEvent) (bool, error)
}
