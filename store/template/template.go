// Package template загружает шаблоны регистрации (конфигурации check-in) из YAML-файлов
package template

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/validator"
)

// Parse разбирает один шаблон. Неизвестные поля считаются ошибкой
func Parse(content []byte) (*model.Configuration, error) {
	var c model.Configuration
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.NewNotValid(err, "ошибка разбора шаблона")
	}
	c.ApplyDefaults()
	if err := validator.Get().Validate(&c); err != nil {
		return nil, errors.NewNotValid(err, "шаблон "+c.ID)
	}
	keys := make(map[string]bool, len(c.Labels))
	for _, l := range c.Labels {
		if keys[l.Key] {
			return nil, errors.NotValidf("шаблон %s: повтор ключа этикетки %q", c.ID, l.Key)
		}
		keys[l.Key] = true
		if l.PrintTo == model.PrintToPrinter && l.PrinterAddress == "" {
			return nil, errors.NotValidf("шаблон %s: этикетка %q без адреса принтера", c.ID, l.Key)
		}
	}
	return &c, nil
}

// LoadDir загружает все шаблоны *.yaml и *.yml директории path по возрастанию ID
func LoadDir(path string) ([]model.Configuration, error) {
	files, err := ioutil.ReadDir(path)
	if err != nil {
		return nil, errors.Annotatef(err, "ошибка чтения директории шаблонов %s", path)
	}

	res := make([]model.Configuration, 0)
	seen := make(map[string]string)
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if f.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		fileName := filepath.Join(path, f.Name())
		content, err := ioutil.ReadFile(fileName)
		if err != nil {
			return nil, errors.Annotatef(err, "ошибка чтения шаблона %s", fileName)
		}
		c, err := Parse(content)
		if err != nil {
			return nil, errors.Annotatef(err, "файл %s", fileName)
		}
		if other, ok := seen[c.ID]; ok {
			return nil, errors.NotValidf("шаблон %s описан в %s и %s", c.ID, other, fileName)
		}
		seen[c.ID] = fileName
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
