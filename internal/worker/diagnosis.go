// Package worker processes completed intake sessions off the event stream.
package worker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/intake"
)

// Analyze derives chartable diagnoses from a completed intake. Rules are
// conservative: only conditions the patient directly reported, plus BMI
// classification computed from their stated height and weight.
func Analyze(sections map[catalog.Section]intake.Record) []ehr.Diagnosis {
	var diagnoses []ehr.Diagnosis

	if weight, ok := sections[catalog.SectionWeightHistory]; ok {
		diagnoses = append(diagnoses, bmiDiagnoses(weight)...)
	}
	if medical, ok := sections[catalog.SectionMedicalHistory]; ok {
		diagnoses = append(diagnoses, conditionDiagnoses(medical)...)
	}

	return diagnoses
}

// bmiDiagnoses classifies the patient's BMI into ICD-10 E66 and Z68 codes.
func bmiDiagnoses(record intake.Record) []ehr.Diagnosis {
	feet, okF := asFloat(value(record, "currentVitals.height.feet"))
	inches, okI := asFloat(value(record, "currentVitals.height.inches"))
	weight, okW := asFloat(value(record, "currentVitals.weight"))
	if !okF || !okW {
		return nil
	}
	if !okI {
		inches = 0
	}

	heightIn := feet*12 + inches
	if heightIn <= 0 || weight <= 0 {
		return nil
	}
	bmi := 703 * weight / (heightIn * heightIn)

	var diagnoses []ehr.Diagnosis
	switch {
	case bmi >= 40:
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        "E66.01",
			Description: "Morbid (severe) obesity due to excess calories",
			Status:      "active",
		})
	case bmi >= 30:
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        "E66.9",
			Description: "Obesity, unspecified",
			Status:      "active",
		})
	case bmi >= 25:
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        "E66.3",
			Description: "Overweight",
			Status:      "active",
		})
	}
	if code, ok := bmiZCode(bmi); ok {
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        code,
			Description: fmt.Sprintf("Body mass index (BMI) %.1f, adult", bmi),
			Status:      "active",
		})
	}
	return diagnoses
}

// bmiZCode maps an adult BMI to its Z68 band. Bands below 30 are not charted.
func bmiZCode(bmi float64) (string, bool) {
	switch {
	case bmi >= 70:
		return "Z68.45", true
	case bmi >= 60:
		return "Z68.44", true
	case bmi >= 50:
		return "Z68.43", true
	case bmi >= 45:
		return "Z68.42", true
	case bmi >= 40:
		return "Z68.41", true
	case bmi >= 30:
		return fmt.Sprintf("Z68.3%d", int(bmi)-30), true
	default:
		return "", false
	}
}

// conditionDiagnoses maps patient-reported conditions to ICD-10 codes.
func conditionDiagnoses(record intake.Record) []ehr.Diagnosis {
	var diagnoses []ehr.Diagnosis
	if isAffirmative(value(record, "specificConditions.gerdHeartburn.hasGerd")) {
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        "K21.9",
			Description: "Gastro-esophageal reflux disease without esophagitis",
			Status:      "active",
		})
	}
	if isAffirmative(value(record, "specificConditions.pancreatitis.hasPancreatitis")) {
		diagnoses = append(diagnoses, ehr.Diagnosis{
			Code:        "Z87.19",
			Description: "Personal history of other diseases of the digestive system",
			Status:      "active",
		})
	}
	return diagnoses
}

func value(record intake.Record, path string) any {
	v, ok := record.Get(path)
	if !ok {
		return nil
	}
	return v
}

// asFloat coerces extracted values to a number. Extraction may hand back
// JSON numbers or free text like "250 lbs".
func asFloat(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}

func isAffirmative(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y":
			return true
		}
	}
	return false
}
