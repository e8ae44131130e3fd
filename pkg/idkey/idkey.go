// Package idkey кодирует внутренние числовые идентификаторы в непрозрачные
// строковые ключи и обратно. Кодек не хранит состояния: секрет передаётся явно.
package idkey

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"

	"github.com/juju/errors"
	"github.com/zeebo/blake3"
)

const (
	derivationContext = "checkin idkey v1"
	tagSize           = 8
)

// Kind тип сущности, участвующий в подписи ключа. Ключ персоны не раскодируется
// как ключ семьи
type Kind string

const (
	KindFamily   Kind = "family"
	KindPerson   Kind = "person"
	KindArea     Kind = "area"
	KindGroup    Kind = "group"
	KindLocation Kind = "location"
	KindSchedule Kind = "schedule"
	KindDevice   Kind = "device"
	KindCampus   Kind = "campus"
	KindAttend   Kind = "attendance"
)

// Encode кодирует id в ключ вида base64url(uvarint(id) || tag)
func Encode(secret string, kind Kind, id uint) string {
	buf := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+tagSize)
	n := binary.PutUvarint(buf, uint64(id))
	buf = buf[:n]
	buf = append(buf, tag(secret, kind, buf)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode раскодирует ключ. Любое несоответствие возвращает ошибку NotValid
func Decode(secret string, kind Kind, key string) (uint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil || len(raw) <= tagSize {
		return 0, errors.NotValidf("ключ %s %q", kind, key)
	}
	body, sign := raw[:len(raw)-tagSize], raw[len(raw)-tagSize:]
	if subtle.ConstantTimeCompare(sign, tag(secret, kind, body)) != 1 {
		return 0, errors.NotValidf("ключ %s %q", kind, key)
	}
	id, n := binary.Uvarint(body)
	if n != len(body) {
		return 0, errors.NotValidf("ключ %s %q", kind, key)
	}
	return uint(id), nil
}

// DecodeAll раскодирует список ключей
func DecodeAll(secret string, kind Kind, keys []string) ([]uint, error) {
	res := make([]uint, 0, len(keys))
	for _, k := range keys {
		id, err := Decode(secret, kind, k)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res = append(res, id)
	}
	return res, nil
}

func tag(secret string, kind Kind, body []byte) []byte {
	key := make([]byte, 32)
	blake3.DeriveKey(derivationContext, []byte(secret), key)
	h, err := blake3.NewKeyed(key)
	if err != nil {
		// Длина ключа фиксирована, ошибка невозможна
		panic(err)
	}
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return h.Sum(nil)[:tagSize]
}
