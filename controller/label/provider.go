// Package label формирует этикетки посещений и рассылает их на принтеры
// в пределах заданного предельного времени
package label

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/service"
)

const defaultDeadline = 5 * time.Second

// Item посещение, для которого формируются этикетки
type Item struct {
	Attendance  model.Attendance
	Person      model.Person
	Opportunity model.Opportunity
	// Адрес принтера помещения
	LocationPrinter string
}

// Request запрос формирования и печати этикеток
type Request struct {
	Configuration model.Configuration
	Items         []Item
	// Киоск, с которого идёт регистрация (может отсутствовать)
	Kiosk *model.Device
	// Доставка на принтеры. nil - этикетки печатаются на клиенте
	Transport service.PrintTransport
	// Предельное время (0 - по умолчанию)
	Deadline time.Duration
	Now      time.Time
}

// Provider формирование и печать этикеток. Инициируется через NewProvider
type Provider struct {
	log      *logrus.Entry
	deadline time.Duration
}

// ConfigProvider конфигурация Provider
type ConfigProvider struct {
	Log *logrus.Logger
	// Предельное время по умолчанию
	Deadline time.Duration
}

// NewProvider конструктор Provider
func NewProvider(config ConfigProvider) *Provider {
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Deadline <= 0 {
		config.Deadline = defaultDeadline
	}
	return &Provider{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "label",
			"scope":  "controller",
		}),
		deadline: config.Deadline,
	}
}

// job одна этикетка к формированию и отправке
type job struct {
	template model.LabelTemplate
	data     Data
	label    model.ClientLabel
}

// CheckInLabels формирует и печатает этикетки регистрации. Возвращает все этикетки,
// включая ошибочные. Завершается не позже предельного времени
func (m *Provider) CheckInLabels(ctx context.Context, req Request) []model.ClientLabel {
	return m.run(ctx, req, m.checkInJobs(req))
}

// CheckoutLabels формирует и печатает этикетки выхода
func (m *Provider) CheckoutLabels(ctx context.Context, req Request) []model.ClientLabel {
	return m.run(ctx, req, m.checkoutJobs(req))
}

func (m *Provider) checkInJobs(req Request) []job {
	at := req.Now
	if at.IsZero() {
		at = time.Now()
	}
	jobs := make([]job, 0)

	for _, item := range req.Items {
		data := newData(item, at, false)
		for _, tpl := range req.Configuration.LabelsOf(model.LabelPerson) {
			jobs = append(jobs, m.newJob(tpl, item, data, req.Kiosk))
		}
		for _, tpl := range req.Configuration.LabelsOf(model.LabelLocation) {
			jobs = append(jobs, m.newJob(tpl, item, data, req.Kiosk))
		}
	}

	// Одна семейная этикетка на семью
	families := make([]uint, 0)
	byFamily := make(map[uint][]Item)
	for _, item := range req.Items {
		if _, ok := byFamily[item.Person.FamilyID]; !ok {
			families = append(families, item.Person.FamilyID)
		}
		byFamily[item.Person.FamilyID] = append(byFamily[item.Person.FamilyID], item)
	}
	for _, familyID := range families {
		items := byFamily[familyID]
		data := newData(items[0], at, false)
		for _, item := range items {
			data.Family = append(data.Family, newData(item, at, false))
		}
		for _, tpl := range req.Configuration.LabelsOf(model.LabelFamily) {
			j := m.newJob(tpl, items[0], data, req.Kiosk)
			j.label.AttendanceID = 0
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (m *Provider) checkoutJobs(req Request) []job {
	at := req.Now
	if at.IsZero() {
		at = time.Now()
	}
	jobs := make([]job, 0)
	for _, item := range req.Items {
		data := newData(item, at, true)
		for _, tpl := range req.Configuration.LabelsOf(model.LabelCheckout) {
			jobs = append(jobs, m.newJob(tpl, item, data, req.Kiosk))
		}
	}
	return jobs
}

func (m *Provider) newJob(tpl model.LabelTemplate, item Item, data Data, kiosk *model.Device) job {
	return job{
		template: tpl,
		data:     data,
		label: model.ClientLabel{
			Key:            tpl.Key,
			AttendanceID:   item.Attendance.ID,
			PersonID:       item.Person.ID,
			PrinterAddress: printerAddress(tpl, item, kiosk),
		},
	}
}

// Адрес принтера этикетки. Пустой адрес - печать на клиенте
func printerAddress(tpl model.LabelTemplate, item Item, kiosk *model.Device) string {
	kioskPrinter := ""
	if kiosk != nil {
		kioskPrinter = kiosk.PrinterAddress
	}
	switch tpl.PrintTo {
	case model.PrintToPrinter:
		return tpl.PrinterAddress
	case model.PrintToLocation:
		if item.LocationPrinter != "" {
			return item.LocationPrinter
		}
		return kioskPrinter
	default:
		return kioskPrinter
	}
}

// Параллельная обработка этикеток с ограничением по времени. Этикетки,
// не обработанные к сроку, получают ошибку таймаута
func (m *Provider) run(ctx context.Context, req Request, jobs []job) []model.ClientLabel {
	res := make([]model.ClientLabel, len(jobs))
	if len(jobs) == 0 {
		return res
	}
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = m.deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		index int
		label model.ClientLabel
	}
	results := make(chan result, len(jobs))
	for i, j := range jobs {
		go func(i int, j job) {
			results <- result{index: i, label: m.process(ctx, j, req.Transport)}
		}(i, j)
	}

	finished := make([]bool, len(jobs))
	for n := 0; n < len(jobs); n++ {
		select {
		case r := <-results:
			res[r.index] = r.label
			finished[r.index] = true
		case <-ctx.Done():
			for i, j := range jobs {
				if finished[i] {
					continue
				}
				label := j.label
				label.Error = errors.Timeoutf("этикетка %s", j.label.Key).Error()
				res[i] = label
				m.log.Warnf("этикетка %s (посещение %d) не обработана к сроку %s", j.label.Key, j.label.AttendanceID, deadline)
			}
			return res
		}
	}
	return res
}

// Формирование и отправка одной этикетки
func (m *Provider) process(ctx context.Context, j job, transport service.PrintTransport) model.ClientLabel {
	label := j.label
	data, contentType, err := Render(j.template.Key, j.template.Content, j.data)
	if err != nil {
		m.log.Warnf("ошибка формирования этикетки: %s", err)
		label.Error = err.Error()
		return label
	}
	label.Data = data
	label.ContentType = contentType

	if transport == nil || label.PrinterAddress == "" {
		return label
	}
	if err := transport.Print(ctx, label.PrinterAddress, data); err != nil {
		m.log.Warnf("ошибка печати этикетки %s на %s: %s", label.Key, label.PrinterAddress, err)
		label.Error = err.Error()
		return label
	}
	label.Printed = true
	return label
}

// Successful этикетки для клиента: только сформированные
func Successful(labels []model.ClientLabel) []model.ClientLabel {
	res := make([]model.ClientLabel, 0, len(labels))
	for _, l := range labels {
		if l.IsRendered() {
			res = append(res, l)
		}
	}
	return res
}

// Failed сообщения об ошибках этикеток
func Failed(labels []model.ClientLabel) []string {
	res := make([]string, 0)
	for _, l := range labels {
		if l.Error != "" {
			res = append(res, l.Key+": "+l.Error)
		}
	}
	return res
}
