package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/jinzhu/configor"
)

var (
	config Config
	once   sync.Once
)

const FileName = "config.yaml"

// Get единожды читает и возвращает конфигурацию
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		if _, err := os.Stat(filepath); err != nil {
			log.Fatalf("файл конфигурации недоступен: %s", err)
		}
		if err := Load(&config, filepath); err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
	})
	return &config
}

// Load читает конфигурацию из файла filepath в cfg без кэширования
func Load(cfg *Config, filepath string) error {
	if err := configor.Load(cfg, filepath); err != nil {
		return err
	}
	// Корректировки значений
	cfg.Checkin.LabelTimeout = cfg.Checkin.LabelTimeout * time.Millisecond
	cfg.Printer.DialTimeout = cfg.Printer.DialTimeout * time.Millisecond
	cfg.Printer.ProxyAckTimeout = cfg.Printer.ProxyAckTimeout * time.Millisecond
	return nil
}

// Location часовой пояс расписаний
func (c *Config) Location() *time.Location {
	if c.Checkin.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Checkin.Timezone)
	if err != nil {
		log.Printf("неизвестный часовой пояс %q, используется локальный", c.Checkin.Timezone)
		return time.Local
	}
	return loc
}
