// Package pin хэширует и проверяет PIN-коды переопределения (argon2id)
package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/crypto/argon2"
)

// Params параметры argon2id
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams параметры по умолчанию. PIN короткий, поэтому память не экономим
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash возвращает хэш pin в формате $argon2id$v=19$m=...,t=...,p=...$salt$hash
func Hash(pin string, params Params) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Trace(err)
	}
	hash := argon2.IDKey([]byte(pin), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Verify проверяет pin по хэшу. Некорректный формат хэша - ошибка, несовпадение - false
func Verify(hashed, pin string) (bool, error) {
	parts := strings.Split(hashed, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.NotValidf("формат хэша PIN")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errors.Annotate(err, "версия хэша PIN")
	}
	if version != argon2.Version {
		return false, errors.NotSupportedf("версия argon2 %d", version)
	}
	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false, errors.Annotate(err, "параметры хэша PIN")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.Annotate(err, "соль хэша PIN")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.Annotate(err, "тело хэша PIN")
	}
	got := argon2.IDKey([]byte(pin), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// VerifyAny проверяет pin по списку хэшей. Все хэши проверяются целиком, чтобы
// время ответа не зависело от позиции совпадения
func VerifyAny(hashes []string, pin string) bool {
	matched := false
	for _, h := range hashes {
		ok, err := Verify(h, pin)
		if err == nil && ok {
			matched = true
		}
	}
	return matched
}
