package validator

import (
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/kirsrus/checkin/server/model"
)

// Валидатор адреса принтера: "host" или "host:port"
func validatorPrinterAddr(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if address == "" {
		return true
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// Адрес без порта
		return net.ParseIP(address) != nil || isHostname(address)
	}
	if host == "" {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p > 0 && p < 65536
}

// Валидатор типа поиска семей
func validatorSearchType(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(model.SearchType)
	if !ok {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		value = model.SearchType(s)
	}
	return value == "" || value.IsValid()
}

func isHostname(s string) bool {
	if len(s) > 253 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
