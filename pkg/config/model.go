package config

import "time"

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файла логирования
			Filename string `required:"true" default:"checkin.log"`

			// Уровень логирования
			Level string `required:"true" default:"warning"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описываем подключение к базе данных
		Db struct {

			// Тип базы данных (пока только sqlite)
			Type string `default:"sqlite"`

			// Имя файла базы данных
			Filename string `required:"true" default:"checkin.sqlite"`
		}

		// Шаблоны регистрации (конфигурации check-in)
		Templates struct {

			// Директория с YAML-файлами шаблонов
			Path string `default:"./templates"`

			// Время жизни закэшированных справочников (в секундах)
			CacheSeconds uint `default:"300"`
		}

		// Процесс регистрации
		Checkin struct {

			// Секрет кодирования внешних идентификаторов
			IdKeySecret string `required:"true"`

			// Часовой пояс расписаний (пусто - локальный)
			Timezone string

			// Время жизни неподтверждённой (pending) регистрации в минутах
			PendingTTL uint `default:"30"`

			// Период очистки просроченных pending-регистраций в минутах
			CleanInterval uint `default:"5"`

			// Предельное время печати этикеток (в миллисекундах)
			LabelTimeout time.Duration `default:"5000"`

			// Argon2-хэши глобальных PIN-кодов переопределения
			OverridePinHashes []string
		}

		// Печать этикеток
		Printer struct {

			// Таймаут подключения к принтеру (в миллисекундах)
			DialTimeout time.Duration `default:"2000"`

			// Таймаут ожидания подтверждения печати через прокси (в миллисекундах)
			ProxyAckTimeout time.Duration `default:"4000"`

			// Порт прямой печати по умолчанию
			DefaultPort uint `default:"9100"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"8080"`
		}

		// Автоматическая регистрация по маякам
		Proximity struct {

			// Шаблон регистрации, по которому ищутся возможности
			ConfigurationID string
		}

		// Получение телеметрии маяков через MQTT
		Mqtt struct {
			Enabled  bool   `default:"false"`
			Broker   string `default:"tcp://127.0.0.1:1883"`
			ClientID string `default:"checkin-server"`
			Username string
			Password string
			Topic    string `default:"checkin/proximity/+"`
		}

		// Подпись токенов персональных устройств
		Jwt struct {
			Secret string
		}

		// Анонс сервера в локальной сети (mDNS)
		Discovery struct {
			Enabled  bool   `default:"false"`
			Instance string `default:"Check-in Server"`
		}
	}
)
