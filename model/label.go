package model

// ClientLabel сформированная этикетка. Error заполняется при ошибке формирования
// или печати, Data пуст при ошибке формирования
type ClientLabel struct {
	Key            string `json:"key"`
	AttendanceID   uint   `json:"-"`
	PersonID       uint   `json:"-"`
	PrinterAddress string `json:"printerAddress,omitempty"`
	ContentType    string `json:"contentType"`
	Data           []byte `json:"data,omitempty"`
	// Этикетка уже отправлена на принтер сервером
	Printed bool   `json:"printed"`
	Error   string `json:"error,omitempty"`
}

// IsRendered этикетка сформирована
func (m ClientLabel) IsRendered() bool {
	return len(m.Data) > 0
}
