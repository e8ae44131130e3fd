package model

// SearchType тип поиска семей
type SearchType string

const (
	SearchByName         SearchType = "name"
	SearchByPhone        SearchType = "phone"
	SearchByNameAndPhone SearchType = "name_and_phone"
	SearchByFamilyID     SearchType = "family_id"
)

// IsValid тип поиска известен
func (m SearchType) IsValid() bool {
	switch m {
	case SearchByName, SearchByPhone, SearchByNameAndPhone, SearchByFamilyID:
		return true
	}
	return false
}

// ConfigurationKind способ регистрации
type ConfigurationKind string

const (
	KindFamily     ConfigurationKind = "family"
	KindIndividual ConfigurationKind = "individual"
)

// LabelKind тип этикетки
type LabelKind string

const (
	// Этикетка на каждого посетителя
	LabelPerson LabelKind = "person"
	// Этикетка на каждую регистрацию в помещение
	LabelLocation LabelKind = "location"
	// Одна этикетка на семью (родителю)
	LabelFamily LabelKind = "family"
	// Этикетка при выходе
	LabelCheckout LabelKind = "checkout"
)

// PrintTo куда печатать этикетку
type PrintTo string

const (
	PrintToKiosk    PrintTo = "kiosk"
	PrintToLocation PrintTo = "location"
	PrintToPrinter  PrintTo = "printer"
)

// LabelTemplate шаблон этикетки
type LabelTemplate struct {
	Key     string    `yaml:"key" conform:"trim" validate:"required"`
	Kind    LabelKind `yaml:"kind" validate:"required,oneof=person location family checkout"`
	PrintTo PrintTo   `yaml:"print_to" validate:"omitempty,oneof=kiosk location printer"`
	// Адрес принтера для PrintTo=printer
	PrinterAddress string `yaml:"printer_address" validate:"printeraddr"`
	// Содержимое этикетки в формате text/template (например, ZPL с полями слияния)
	Content string `yaml:"content" validate:"required"`
}

// Configuration шаблон регистрации. Загружается один раз и не изменяется процессом регистрации
type Configuration struct {
	ID   string            `yaml:"id" conform:"trim" validate:"required"`
	Name string            `yaml:"name" conform:"trim" validate:"required"`
	Kind ConfigurationKind `yaml:"kind" validate:"omitempty,oneof=family individual"`

	// Области, доступные в этом шаблоне
	AreaIDs []uint `yaml:"area_ids" validate:"required,min=1"`

	// Настройки поиска
	SearchType       SearchType `yaml:"search_type" validate:"searchtype"`
	MinSearchLength  int        `yaml:"min_search_length" validate:"min=0"`
	MaxSearchResults int        `yaml:"max_search_results" validate:"min=0"`

	// Запрет повторной регистрации на то же расписание
	PreventDuplicateCheckIn bool `yaml:"prevent_duplicate_checkin"`
	// Неактивные персоны не показываются
	PreventInactivePeople bool `yaml:"prevent_inactive_people"`
	// Разрешён выход через киоск
	AllowCheckout bool `yaml:"allow_checkout"`
	// Длина кода безопасности
	SecurityCodeLength int `yaml:"security_code_length" validate:"min=0,max=10"`
	// Группа с возрастными ограничениями недоступна персоне без даты рождения
	AgeMatchRequired bool `yaml:"age_match_required"`
	// Группа с ограничением по классу недоступна персоне без класса
	GradeMatchRequired bool `yaml:"grade_match_required"`

	// Argon2-хэши PIN-кодов переопределения
	OverridePinHashes []string `yaml:"override_pin_hashes"`

	Labels []LabelTemplate `yaml:"labels" validate:"dive"`
}

const (
	defaultMinSearchLength    = 3
	defaultMaxSearchResults   = 100
	defaultSecurityCodeLength = 3
)

// ApplyDefaults заполняет незаданные значения значениями по умолчанию
func (m *Configuration) ApplyDefaults() {
	if m.Kind == "" {
		m.Kind = KindFamily
	}
	if m.SearchType == "" {
		m.SearchType = SearchByNameAndPhone
	}
	if m.MinSearchLength == 0 {
		m.MinSearchLength = defaultMinSearchLength
	}
	if m.MaxSearchResults == 0 {
		m.MaxSearchResults = defaultMaxSearchResults
	}
	if m.SecurityCodeLength == 0 {
		m.SecurityCodeLength = defaultSecurityCodeLength
	}
	for i := range m.Labels {
		if m.Labels[i].PrintTo == "" {
			m.Labels[i].PrintTo = PrintToKiosk
		}
	}
}

// HasArea область входит в шаблон
func (m Configuration) HasArea(id uint) bool {
	for _, a := range m.AreaIDs {
		if a == id {
			return true
		}
	}
	return false
}

// LabelsOf шаблоны этикеток указанного типа
func (m Configuration) LabelsOf(kind LabelKind) []LabelTemplate {
	res := make([]LabelTemplate, 0)
	for _, l := range m.Labels {
		if l.Kind == kind {
			res = append(res, l)
		}
	}
	return res
}

// AreaSummary краткое описание области для выбора на киоске
type AreaSummary struct {
	ID     uint
	Name   string
	Groups int
}

// ConfigurationSummary шаблон регистрации и его области
type ConfigurationSummary struct {
	ID    string
	Name  string
	Kind  ConfigurationKind
	Areas []AreaSummary
}
