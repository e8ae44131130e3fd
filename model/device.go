package model

// DeviceKind тип устройства
type DeviceKind string

const (
	DeviceKiosk   DeviceKind = "kiosk"
	DevicePrinter DeviceKind = "printer"
	DeviceProxy   DeviceKind = "proxy"
)

// Device описывает физическое устройство: киоск, принтер или облачный прокси печати
type Device struct {
	ID       uint       `validate:"required"`
	Name     string     `conform:"trim" validate:"required"`
	Kind     DeviceKind `validate:"required,oneof=kiosk printer proxy"`
	CampusID uint

	IPAddress string `conform:"trim"`

	// Для киоска - адрес принтера, на котором печатаются его этикетки.
	// Для принтера - собственный адрес
	PrinterAddress string `conform:"trim" validate:"printeraddr"`

	// Принтер доступен только через прокси-устройство с этим ID (0 - напрямую)
	ProxyDeviceID uint

	// Помещения, которые обслуживает киоск
	LocationIDs []uint
}

// IsKiosk устройство является киоском
func (m Device) IsKiosk() bool {
	return m.Kind == DeviceKiosk
}

// IsProxy устройство является облачным прокси печати
func (m Device) IsProxy() bool {
	return m.Kind == DeviceProxy
}
