package checkin

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/kirsrus/checkin/server/model"
)

// Оценки релевантности поиска
const (
	relevanceFullName   = 100
	relevanceExactPhone = 90
	relevanceLastName   = 80
	relevancePhoneTail  = 70
	relevancePrefix     = 60
	relevanceContains   = 40
	relevancePhonePart  = 30
	relevanceFamilyID   = 100
)

// Символы кода безопасности (без похожих друг на друга)
const securityAlphabet = "ACDEFGHJKLMNPQRTUVWXY3479"

// Нормализованный поисковый запрос. Для телефона остаются только цифры
func normalizeTerm(term string, searchType model.SearchType) string {
	term = strings.TrimSpace(term)
	if searchType == model.SearchByPhone {
		return digits(term)
	}
	return strings.ToLower(term)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// relevance оценка совпадения семьи с запросом. 0 - не совпадает
func relevance(f model.Family, term string, searchType model.SearchType) int {
	if searchType == model.SearchByFamilyID {
		if strconv.FormatUint(uint64(f.ID), 10) == term {
			return relevanceFamilyID
		}
		return 0
	}

	best := 0
	byName := searchType == model.SearchByName || searchType == model.SearchByNameAndPhone
	byPhone := searchType == model.SearchByPhone || searchType == model.SearchByNameAndPhone
	if byName {
		best = max(best, nameRelevance(strings.ToLower(f.Name), term, true))
		for _, p := range f.Members {
			full := strings.ToLower(p.FullName())
			display := strings.ToLower(p.DisplayName())
			if term == full || term == display {
				best = max(best, relevanceFullName)
				continue
			}
			best = max(best, nameRelevance(strings.ToLower(p.LastName), term, true))
			best = max(best, nameRelevance(strings.ToLower(p.FirstName), term, false))
			best = max(best, nameRelevance(strings.ToLower(p.NickName), term, false))
			best = max(best, nameRelevance(full, term, false))
		}
	}
	if d := digits(term); byPhone && d != "" {
		for _, p := range f.Members {
			best = max(best, phoneRelevance(p.PhoneNumber, d))
		}
	}
	return best
}

func nameRelevance(value, term string, lastName bool) int {
	switch {
	case value == "" || term == "":
		return 0
	case value == term && lastName:
		return relevanceLastName
	case strings.HasPrefix(value, term):
		return relevancePrefix
	case strings.Contains(value, term):
		return relevanceContains
	}
	return 0
}

func phoneRelevance(phone, d string) int {
	switch {
	case phone == "":
		return 0
	case phone == d:
		return relevanceExactPhone
	case strings.HasSuffix(phone, d):
		return relevancePhoneTail
	case strings.Contains(phone, d):
		return relevancePhonePart
	}
	return 0
}

// Код безопасности заданной длины
func securityCode(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	limit := big.NewInt(int64(len(securityAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Annotate(err, "генерация кода безопасности")
		}
		code[i] = securityAlphabet[n.Int64()]
	}
	return string(code), nil
}
