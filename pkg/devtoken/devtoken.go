// Package devtoken токены персональных устройств (JWT HS256). Subject токена - ключ устройства
package devtoken

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/juju/errors"
)

// Sign выпускает токен устройства deviceKey. ttl=0 - бессрочный
func Sign(secret []byte, deviceKey string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("не задан секрет подписи")
	}
	if deviceKey == "" {
		return "", errors.New("не задан ключ устройства")
	}
	claims := jwt.StandardClaims{Subject: deviceKey, IssuedAt: time.Now().Unix()}
	if ttl > 0 {
		claims.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return token, errors.Trace(err)
}

// Verify проверяет токен и возвращает ключ устройства. Любая ошибка - Unauthorized
func Verify(secret []byte, raw string) (string, error) {
	if len(secret) == 0 {
		return "", errors.Unauthorizedf("приём событий маяков отключён")
	}
	if raw == "" {
		return "", errors.Unauthorizedf("не передан токен")
	}
	claims := jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("неожиданный метод подписи %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", errors.NewUnauthorized(err, "некорректный токен")
	}
	if claims.Subject == "" {
		return "", errors.Unauthorizedf("в токене нет устройства")
	}
	return claims.Subject, nil
}
