package intake

import "github.com/poundofcure/go-intake/internal/catalog"

// ehrDemographicsMap translates upstream EHR patient-record field names to
// demographics leaf paths. Upstream names rarely match intake names 1:1, so
// the mapping is explicit rather than derived.
var ehrDemographicsMap = map[string]string{
	"first_name":      "firstName",
	"last_name":       "lastName",
	"dob":             "dateOfBirth",
	"gender":          "gender",
	"email":           "email",
	"mobile":          "phone.mobile",
	"home_phone":      "phone.home",
	"work_phone":      "phone.work",
	"work_phone_extn": "phone.workExtension",
	"address_line1":   "address.addressLine1",
	"address_line2":   "address.addressLine2",
	"city":            "address.city",
	"state":           "address.state",
	"postal_code":     "address.zipCode",
	"country":         "address.country",
}

// TranslateEHRFields maps verification-time upstream data into a section
// record. It returns the pre-populated record and the leaf paths it covered,
// which the tracker subtracts from the unasked set. Only demographics has an
// upstream mapping today; other sections pre-populate nothing.
func TranslateEHRFields(section catalog.Section, upstream map[string]string) (Record, []string) {
	record := make(Record)
	var covered []string

	if section != catalog.SectionDemographics {
		return record, nil
	}

	for ehrField, path := range ehrDemographicsMap {
		value := upstream[ehrField]
		if value == "" {
			continue
		}
		record.Set(path, value)
		covered = append(covered, path)
	}
	return record, covered
}
