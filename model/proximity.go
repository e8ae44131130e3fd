package model

import "encoding/json"

// Beacon показание маяка
type Beacon struct {
	Major             int     `json:"major" validate:"min=0,max=65535"`
	Minor             int     `json:"minor" validate:"min=0,max=65535"`
	SignalStrength    int     `json:"signalStrength"`
	EstimatedDistance float64 `json:"estimatedDistance" validate:"min=0"`
}

// UnmarshalJSON принимает также короткие имена rssi и distance. При наличии обоих
// вариантов приоритет у полных имён
func (m *Beacon) UnmarshalJSON(data []byte) error {
	var raw struct {
		Major             int      `json:"major"`
		Minor             int      `json:"minor"`
		SignalStrength    *int     `json:"signalStrength"`
		Rssi              *int     `json:"rssi"`
		EstimatedDistance *float64 `json:"estimatedDistance"`
		Distance          *float64 `json:"distance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Beacon{Major: raw.Major, Minor: raw.Minor}
	switch {
	case raw.SignalStrength != nil:
		m.SignalStrength = *raw.SignalStrength
	case raw.Rssi != nil:
		m.SignalStrength = *raw.Rssi
	}
	switch {
	case raw.EstimatedDistance != nil:
		m.EstimatedDistance = *raw.EstimatedDistance
	case raw.Distance != nil:
		m.EstimatedDistance = *raw.Distance
	}
	return nil
}

// ProximityEvent событие появления или ухода персонального устройства из зоны маяков
type ProximityEvent struct {
	ProximityID      string   `json:"proximityId" conform:"trim"`
	PersonalDeviceID string   `json:"personalDeviceId" conform:"trim"`
	IsPresent        bool     `json:"isPresent"`
	Beacons          []Beacon `json:"beacons" validate:"required,min=1,dive"`
}

// Strongest выбирает маяк с наибольшей мощностью сигнала, при равенстве - ближайший,
// далее - первый в списке. Второй результат false для пустого списка
func (m ProximityEvent) Strongest() (Beacon, bool) {
	if len(m.Beacons) == 0 {
		return Beacon{}, false
	}
	best := m.Beacons[0]
	for _, b := range m.Beacons[1:] {
		if b.SignalStrength > best.SignalStrength ||
			(b.SignalStrength == best.SignalStrength && b.EstimatedDistance < best.EstimatedDistance) {
			best = b
		}
	}
	return best, true
}
