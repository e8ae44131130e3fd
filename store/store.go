package store

import (
	"context"
	"time"

	"github.com/kirsrus/checkin/server/model"
)

// FamilyQuery запрос поиска семей
type FamilyQuery struct {
	Type  model.SearchType
	Term  string
	Limit int
}

// DbStore репозиторий общения с БД. Отсутствие записей проверяется через errors.IsNotFound
//go:generate mockery --dir . --name DbStore --output ./mocks
type DbStore interface {
	// Кандидаты для поиска семей. Оценка релевантности выполняется вызывающей стороной
	SearchFamilies(ctx context.Context, query FamilyQuery) ([]model.Family, error)
	// Семья со всеми членами
	Family(ctx context.Context, id uint) (*model.Family, error)
	// Персона
	Person(ctx context.Context, id uint) (*model.Person, error)
	// Персона по ключу персонального устройства
	PersonByDevice(ctx context.Context, deviceKey string) (*model.Person, error)

	// Подтверждённые незавершённые посещения персон, начатые не ранее since
	OpenAttendance(ctx context.Context, personIDs []uint, since time.Time) ([]model.Attendance, error)
	// Количество подтверждённых незавершённых посещений по помещениям, начатых не ранее since
	LocationCounts(ctx context.Context, locationIDs []uint, since time.Time) (map[uint]int, error)
	// Посещения по идентификаторам
	Attendances(ctx context.Context, ids []uint) ([]model.Attendance, error)
	// Количество pending и подтверждённых записей сессии
	SessionCounts(ctx context.Context, sessionID string) (pending int, committed int, err error)

	// Сохраняет записи сессии. Ранее подготовленные (pending) записи сессии удаляются
	// в той же транзакции. Возвращает сохранённые записи с идентификаторами
	SaveAttendance(ctx context.Context, sessionID string, records []model.Attendance) ([]model.Attendance, error)
	// Переводит pending-записи сессии в подтверждённые. Возвращает переведённые записи
	ConfirmPending(ctx context.Context, sessionID string) ([]model.Attendance, error)
	// Удаляет pending-записи сессии. Возвращает количество удалённых
	DeletePending(ctx context.Context, sessionID string) (int, error)
	// Удаляет pending-записи, созданные ранее before
	DeleteExpiredPending(ctx context.Context, before time.Time) (int, error)
	// Завершает открытые посещения ids моментом at. Возвращает изменённые записи
	Checkout(ctx context.Context, ids []uint, at time.Time) ([]model.Attendance, error)
}

// RefStore справочные данные (шаблоны, устройства, области). Только чтение,
// допускает одновременное использование несколькими сессиями
//go:generate mockery --dir . --name RefStore --output ./mocks
type RefStore interface {
	Configuration(id string) (*model.Configuration, bool)
	Configurations() []model.Configuration
	Device(id uint) (*model.Device, bool)
	DeviceByAddress(address string) (*model.Device, bool)
	Area(id uint) (*model.Area, bool)
	LocationByBeacon(major, minor int) (*model.Location, bool)
}
