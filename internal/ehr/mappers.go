package ehr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/poundofcure/go-intake/internal/intake"
)

// Diagnosis is a practice diagnosis recorded on the chart.
type Diagnosis struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// getString reads a string leaf, treating a declined answer as absent so the
// sentinel never leaks into the chart.
func getString(record intake.Record, path string) string {
	v, ok := record.Get(path)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok || s == intake.Declined {
		return ""
	}
	return s
}

// DemographicsPayload shapes a demographics record for the upstream patient
// resource update.
func DemographicsPayload(record intake.Record) map[string]any {
	return map[string]any{
		"first_name":      getString(record, "firstName"),
		"last_name":       getString(record, "lastName"),
		"dob":             getString(record, "dateOfBirth"),
		"gender":          getString(record, "gender"),
		"email":           getString(record, "email"),
		"mobile":          getString(record, "phone.mobile"),
		"home_phone":      getString(record, "phone.home"),
		"work_phone":      getString(record, "phone.work"),
		"work_phone_extn": getString(record, "phone.workExtension"),
		"address_line1":   getString(record, "address.addressLine1"),
		"address_line2":   getString(record, "address.addressLine2"),
		"city":            getString(record, "address.city"),
		"state":           getString(record, "address.state"),
		"postal_code":     getString(record, "address.zipCode"),
		"country":         DetectCountry(record),
	}
}

// VitalsPayload shapes current height and weight for the vitals endpoint.
// Height is collected as separate feet and inches leaves and pushed as total
// inches. Returns nil when the record holds no vitals worth pushing.
func VitalsPayload(record intake.Record) map[string]any {
	payload := make(map[string]any)
	if feet, ok := getNumber(record, "currentVitals.height.feet"); ok {
		inches, _ := getNumber(record, "currentVitals.height.inches")
		payload["height_inches"] = feet*12 + inches
	}
	if weight, ok := getNumber(record, "currentVitals.weight"); ok {
		payload["weight_pounds"] = weight
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}

// getNumber reads a numeric leaf, tolerating free-text answers like
// "260 lbs". Declined answers read as absent.
func getNumber(record intake.Record, path string) (float64, bool) {
	v, ok := record.Get(path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		if t == intake.Declined {
			return 0, false
		}
		fields := strings.FieldsFunc(t, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.'
		})
		if len(fields) == 0 {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// MedicationPayloads shapes each reported medication as its own resource.
func MedicationPayloads(record intake.Record) []map[string]any {
	return listPayloads(record, "currentMedications", "medication")
}

// AllergyPayloads shapes each reported allergy as its own resource.
func AllergyPayloads(record intake.Record) []map[string]any {
	return listPayloads(record, "allergies", "allergen")
}

func listPayloads(record intake.Record, path, nameKey string) []map[string]any {
	v, ok := record.Get(path)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var payloads []map[string]any
	for _, item := range items {
		switch entry := item.(type) {
		case map[string]any:
			payloads = append(payloads, entry)
		case string:
			if entry != "" && entry != intake.Declined {
				payloads = append(payloads, map[string]any{nameKey: entry})
			}
		}
	}
	return payloads
}

var usZipRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// DetectCountry resolves the address country, defaulting to "us" when the
// ZIP code looks domestic or is absent. Postal codes with letters (Canadian,
// UK) are left for the conversation to clarify, so an explicit answer always
// wins.
func DetectCountry(record intake.Record) string {
	if country := getString(record, "address.country"); country != "" {
		return country
	}
	zip := strings.TrimSpace(getString(record, "address.zipCode"))
	if zip == "" || usZipRe.MatchString(zip) {
		return "us"
	}
	return ""
}
