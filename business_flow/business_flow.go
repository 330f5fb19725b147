package businessflow

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/amirphl/counter-app/models"
	"github.com/amirphl/counter-app/utils"
)

// NormalizeCounterName trims name and substitutes defaultName for a blank one.
// Names longer than the name column are rejected with INVALID_COUNTER_NAME.
func NormalizeCounterName(name, defaultName string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName
	}
	if utf8.RuneCountInString(name) > utils.MaxCounterNameLength {
		return "", NewBusinessErrorf("INVALID_COUNTER_NAME", "counter name must be at most %d characters", ErrInvalidCounterName, utils.MaxCounterNameLength)
	}
	return name, nil
}

// ToCounterDTO converts a counter model to its API representation
func ToCounterDTO(counter models.Counter) dto.CounterResponse {
	return dto.CounterResponse{
		ID:        counter.ID,
		Name:      counter.Name,
		Value:     counter.Value,
		CreatedAt: utils.TimeToUTC(counter.CreatedAt).Format(time.RFC3339),
		UpdatedAt: utils.TimeToUTC(counter.UpdatedAt).Format(time.RFC3339),
	}
}
