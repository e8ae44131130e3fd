package label

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/errors"

	"github.com/kirsrus/checkin/server/model"
)

// Data поля слияния шаблона этикетки
type Data struct {
	Person       model.Person
	Attendance   model.Attendance
	Area         string
	Group        string
	Location     string
	Schedule     string
	SecurityCode string
	Date         string
	Time         string
	Checkout     bool
	// Все посещения семьи (для семейной этикетки)
	Family []Data
}

// Name отображаемое имя персоны
func (m Data) Name() string {
	return m.Person.DisplayName()
}

func newData(item Item, at time.Time, checkout bool) Data {
	return Data{
		Person:       item.Person,
		Attendance:   item.Attendance,
		Area:         item.Opportunity.AreaName,
		Group:        item.Opportunity.GroupName,
		Location:     item.Opportunity.LocationName,
		Schedule:     item.Opportunity.ScheduleName,
		SecurityCode: item.Attendance.SecurityCode,
		Date:         at.Format("02.01.2006"),
		Time:         at.Format("15:04"),
		Checkout:     checkout,
	}
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Render формирует содержимое этикетки по шаблону content. Возвращает данные и их MIME-тип
func Render(key, content string, data Data) ([]byte, string, error) {
	tpl, err := template.New(key).Funcs(funcs).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, "", errors.NotValidf("шаблон этикетки %s: %s", key, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, "", errors.Annotatef(err, "формирование этикетки %s", key)
	}
	if buf.Len() == 0 {
		return nil, "", errors.NotValidf("пустая этикетка %s", key)
	}
	return buf.Bytes(), mimetype.Detect(buf.Bytes()).String(), nil
}
