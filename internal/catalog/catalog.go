// Package catalog defines the static field catalog for the intake schema.
// Leaf paths, prompts and question groups are declared once here; nothing
// else in the engine is allowed to invent a field path at runtime.
package catalog

// Section identifies one top-level subdivision of the intake.
type Section string

const (
	SectionDemographics   Section = "demographics"
	SectionWeightHistory  Section = "weight_history"
	SectionMedicalHistory Section = "medical_history"
)

// Order is the strict section sequence of the automatic conversation flow.
var Order = []Section{SectionDemographics, SectionWeightHistory, SectionMedicalHistory}

// Field describes one leaf of a section's nested record. A leaf is either a
// scalar or an array tracked as a single unit (provider/medication/allergy
// lists are asked about as a whole, not element by element).
type Field struct {
	// Path is the dotted leaf path within the section, e.g. "address.zipCode".
	Path string
	// Prompt is the human-readable question for this field.
	Prompt string
	// Required marks fields the intake cannot be considered useful without.
	Required bool
}

type sectionSchema struct {
	fields []Field
	// groups partitions (not necessarily covering) the leaf paths into
	// batches of related fields presented together in one turn.
	groups [][]string
}

var schemas = map[Section]sectionSchema{
	SectionDemographics: {
		fields: []Field{
			{Path: "firstName", Prompt: "What is your first name?", Required: true},
			{Path: "middleName", Prompt: "What is your middle name, if you have one?"},
			{Path: "lastName", Prompt: "What is your last name?", Required: true},
			{Path: "dateOfBirth", Prompt: "What is your date of birth?", Required: true},
			{Path: "gender", Prompt: "What is your gender?", Required: true},
			{Path: "email", Prompt: "What is your email address?", Required: true},
			{Path: "phone.mobile", Prompt: "What is your mobile phone number?", Required: true},
			{Path: "phone.home", Prompt: "Do you have a home phone number?"},
			{Path: "phone.work", Prompt: "Do you have a work phone number?"},
			{Path: "phone.workExtension", Prompt: "Is there an extension for your work phone?"},
			{Path: "phone.preferred", Prompt: "Which phone number do you prefer we use?"},
			{Path: "address.addressLine1", Prompt: "What is your street address?", Required: true},
			{Path: "address.addressLine2", Prompt: "Is there an apartment or unit number?"},
			{Path: "address.city", Prompt: "What city do you live in?", Required: true},
			{Path: "address.state", Prompt: "What state do you live in?", Required: true},
			{Path: "address.zipCode", Prompt: "What is your ZIP code?", Required: true},
			{Path: "address.country", Prompt: "What country do you live in?"},
			{Path: "emergencyContact.name", Prompt: "Who should we contact in case of an emergency?", Required: true},
			{Path: "emergencyContact.phone", Prompt: "What is your emergency contact's phone number?", Required: true},
			{Path: "emergencyContact.phoneExtension", Prompt: "Is there an extension for that number?"},
			{Path: "communicationPreferences.preferredMethod", Prompt: "How do you prefer we communicate with you: email, phone, text, or the patient portal?"},
			{Path: "communicationPreferences.emailNotifications", Prompt: "Would you like to receive email notifications?"},
			{Path: "communicationPreferences.textNotifications", Prompt: "Would you like to receive text notifications?"},
			{Path: "communicationPreferences.voiceNotifications", Prompt: "Would you like to receive voice call notifications?"},
			{Path: "additionalInfo.language", Prompt: "What is your preferred language?"},
			{Path: "additionalInfo.maritalStatus", Prompt: "What is your marital status?"},
			{Path: "additionalInfo.employmentStatus", Prompt: "What is your employment status?"},
			{Path: "careTeamProviders", Prompt: "Which doctors or providers are part of your care team? Please include their name and specialty."},
		},
		groups: [][]string{
			{"firstName", "middleName", "lastName"},
			{"dateOfBirth", "gender", "email"},
			{"phone.mobile", "phone.home", "phone.work", "phone.preferred"},
			{"address.addressLine1", "address.addressLine2", "address.city"},
			{"address.state", "address.zipCode", "address.country"},
			{"emergencyContact.name", "emergencyContact.phone", "emergencyContact.phoneExtension"},
			{"communicationPreferences.preferredMethod", "communicationPreferences.emailNotifications", "communicationPreferences.textNotifications", "communicationPreferences.voiceNotifications"},
			{"additionalInfo.language", "additionalInfo.maritalStatus", "additionalInfo.employmentStatus"},
			{"careTeamProviders"},
		},
	},
	SectionWeightHistory: {
		fields: []Field{
			{Path: "currentVitals.height.feet", Prompt: "How tall are you? Feet first.", Required: true},
			{Path: "currentVitals.height.inches", Prompt: "And how many inches?", Required: true},
			{Path: "currentVitals.weight", Prompt: "What is your current weight in pounds?", Required: true},
			{Path: "weightHistory.maxEverWeighed", Prompt: "What is the most you have ever weighed?"},
			{Path: "weightHistory.ageAtMaxWeight", Prompt: "How old were you at your highest weight?"},
			{Path: "weightHistory.maxWeightLostByDieting", Prompt: "What is the most weight you have ever lost by dieting?"},
			{Path: "dietHistory.pastDietsTried", Prompt: "Which diets have you tried in the past?"},
			{Path: "dietHistory.strugglesWithDiet", Prompt: "What do you struggle with most when dieting?"},
			{Path: "dietHistory.typicalDayEating.breakfast", Prompt: "What do you typically eat for breakfast?"},
			{Path: "dietHistory.typicalDayEating.lunch", Prompt: "What do you typically eat for lunch?"},
			{Path: "dietHistory.typicalDayEating.dinner", Prompt: "What do you typically eat for dinner?"},
			{Path: "dietHistory.typicalDayEating.snacksDesserts", Prompt: "What snacks or desserts do you usually have?"},
			{Path: "dietHistory.typicalDayEating.beverages", Prompt: "What do you usually drink during the day?"},
			{Path: "dietHistory.weightGainFactors.weightGainingMedications", Prompt: "Have any medications contributed to your weight gain?"},
			{Path: "dietHistory.weightGainFactors.injuries", Prompt: "Have injuries contributed to your weight gain?"},
			{Path: "dietHistory.weightGainFactors.chronicStressOrDepression", Prompt: "Has chronic stress or depression played a role in your weight?"},
			{Path: "dietHistory.weightGainFactors.processedFoodAddictions", Prompt: "Do you feel addicted to processed foods?"},
			{Path: "dietHistory.weightGainFactors.pregnancy", Prompt: "Did pregnancy contribute to your weight gain?"},
			{Path: "dietHistory.weightGainFactors.menopause", Prompt: "Did menopause contribute to your weight gain?"},
			{Path: "dietHistory.weightGainFactors.sugarContainingBeverages", Prompt: "Do you drink sugar-containing beverages regularly?"},
			{Path: "dietHistory.weightGainFactors.alcohol", Prompt: "Has alcohol contributed to your weight?"},
			{Path: "dietHistory.weightGainFactors.quittingSmoking", Prompt: "Did you gain weight after quitting smoking?"},
			{Path: "dietHistory.weightGainFactors.genetics", Prompt: "Does obesity run in your family?"},
			{Path: "dietHistory.weightGainFactors.nightShiftWork", Prompt: "Have you worked night shifts?"},
			{Path: "dietHistory.weightGainFactors.childhoodTrauma", Prompt: "Is there childhood trauma you feel is connected to your weight?"},
			{Path: "exerciseInformation", Prompt: "Tell me about your current exercise routine."},
			{Path: "weightLossMedicationHistory.glp1Medications.hasTriedGlp1", Prompt: "Have you ever tried a GLP-1 medication such as Ozempic, Wegovy, Mounjaro, or Zepbound?", Required: true},
			{Path: "weightLossMedicationHistory.glp1Medications.tirzepatide.hasTried", Prompt: "Have you tried tirzepatide (Mounjaro or Zepbound)?"},
			{Path: "weightLossMedicationHistory.glp1Medications.tirzepatide.highestDose", Prompt: "What was the highest tirzepatide dose you reached?"},
			{Path: "weightLossMedicationHistory.glp1Medications.tirzepatide.weightLost", Prompt: "How much weight did you lose on tirzepatide?"},
			{Path: "weightLossMedicationHistory.glp1Medications.semaglutide.hasTried", Prompt: "Have you tried semaglutide (Ozempic or Wegovy)?"},
			{Path: "weightLossMedicationHistory.glp1Medications.semaglutide.highestDose", Prompt: "What was the highest semaglutide dose you reached?"},
			{Path: "weightLossMedicationHistory.glp1Medications.semaglutide.weightLost", Prompt: "How much weight did you lose on semaglutide?"},
			{Path: "weightLossMedicationHistory.otherWeightLossMedications", Prompt: "Have you tried any other weight loss medications?"},
			{Path: "bariatricSurgeryHistory.hasBariatricSurgeryHistory", Prompt: "Have you ever had bariatric (weight loss) surgery?", Required: true},
			{Path: "bariatricSurgeryHistory.surgeryYear", Prompt: "What year was your bariatric surgery?"},
			{Path: "bariatricSurgeryHistory.surgeryType", Prompt: "What type of bariatric surgery did you have?"},
			{Path: "bariatricSurgeryHistory.preSurgeryWeight", Prompt: "What was your weight before the surgery?"},
			{Path: "bariatricSurgeryHistory.lowestWeightAfterSurgery", Prompt: "What was your lowest weight after the surgery?"},
			{Path: "treatmentPreferences.treatmentApproach", Prompt: "Are you leaning toward a surgical or non-surgical treatment approach, or are you undecided?"},
		},
		groups: [][]string{
			{"currentVitals.height.feet", "currentVitals.height.inches", "currentVitals.weight"},
			{"weightHistory.maxEverWeighed", "weightHistory.ageAtMaxWeight", "weightHistory.maxWeightLostByDieting"},
			{"dietHistory.pastDietsTried", "dietHistory.strugglesWithDiet"},
			{"dietHistory.typicalDayEating.breakfast", "dietHistory.typicalDayEating.lunch", "dietHistory.typicalDayEating.dinner"},
			{"dietHistory.typicalDayEating.snacksDesserts", "dietHistory.typicalDayEating.beverages"},
			{"dietHistory.weightGainFactors.weightGainingMedications", "dietHistory.weightGainFactors.injuries", "dietHistory.weightGainFactors.chronicStressOrDepression"},
			{"dietHistory.weightGainFactors.processedFoodAddictions", "dietHistory.weightGainFactors.pregnancy", "dietHistory.weightGainFactors.menopause"},
			{"dietHistory.weightGainFactors.sugarContainingBeverages", "dietHistory.weightGainFactors.alcohol", "dietHistory.weightGainFactors.quittingSmoking"},
			{"dietHistory.weightGainFactors.genetics", "dietHistory.weightGainFactors.nightShiftWork", "dietHistory.weightGainFactors.childhoodTrauma"},
			{"exerciseInformation"},
			{"weightLossMedicationHistory.glp1Medications.hasTriedGlp1", "weightLossMedicationHistory.otherWeightLossMedications"},
			{"weightLossMedicationHistory.glp1Medications.tirzepatide.hasTried", "weightLossMedicationHistory.glp1Medications.tirzepatide.highestDose", "weightLossMedicationHistory.glp1Medications.tirzepatide.weightLost"},
			{"weightLossMedicationHistory.glp1Medications.semaglutide.hasTried", "weightLossMedicationHistory.glp1Medications.semaglutide.highestDose", "weightLossMedicationHistory.glp1Medications.semaglutide.weightLost"},
			{"bariatricSurgeryHistory.hasBariatricSurgeryHistory", "bariatricSurgeryHistory.surgeryYear", "bariatricSurgeryHistory.surgeryType"},
			{"bariatricSurgeryHistory.preSurgeryWeight", "bariatricSurgeryHistory.lowestWeightAfterSurgery"},
			{"treatmentPreferences.treatmentApproach"},
		},
	},
	SectionMedicalHistory: {
		fields: []Field{
			{Path: "currentMedications", Prompt: "What medications are you currently taking? Please include the strength and how you take them.", Required: true},
			{Path: "allergies", Prompt: "Do you have any allergies to medications or foods? Please describe the reaction.", Required: true},
			{Path: "PMHx", Prompt: "What medical conditions have you been diagnosed with?"},
			{Path: "PMHxObesityComorbid", Prompt: "Have you been diagnosed with diabetes, high blood pressure, sleep apnea, or high cholesterol?"},
			{Path: "familyHistory", Prompt: "Do any medical problems run in your family? Which family member had what?"},
			{Path: "pastSurgicalHistory", Prompt: "What surgeries have you had, and in what years?"},
			{Path: "specificConditions.gerdHeartburn.hasGerd", Prompt: "Do you have GERD or frequent heartburn?"},
			{Path: "specificConditions.gerdHeartburn.gerdDetails", Prompt: "Tell me more about your heartburn symptoms."},
			{Path: "specificConditions.pancreatitis.hasPancreatitis", Prompt: "Have you ever had pancreatitis?"},
			{Path: "specificConditions.pancreatitis.numberOfAttacks", Prompt: "How many pancreatitis attacks have you had?"},
			{Path: "specificConditions.pancreatitis.cause", Prompt: "What caused your pancreatitis, if known?"},
			{Path: "socialHistory.smokingSummary", Prompt: "Do you smoke or have you smoked in the past?", Required: true},
			{Path: "socialHistory.alcoholSummary", Prompt: "How often do you drink alcohol?", Required: true},
			{Path: "socialHistory.marijuanaSummary", Prompt: "Do you use marijuana?"},
			{Path: "socialHistory.drugSummary", Prompt: "Do you use any recreational drugs?", Required: true},
			{Path: "socialHistory.employmentStatus", Prompt: "What is your employment situation?"},
			{Path: "socialHistory.financialSituation", Prompt: "Is there anything about your financial situation we should know when planning treatment?"},
			{Path: "socialHistory.employmentDetails", Prompt: "What kind of work do you do?"},
			{Path: "socialHistory.educationBackground", Prompt: "What is your education background?"},
		},
		groups: [][]string{
			{"currentMedications"},
			{"allergies"},
			{"PMHx", "PMHxObesityComorbid"},
			{"familyHistory", "pastSurgicalHistory"},
			{"specificConditions.gerdHeartburn.hasGerd", "specificConditions.gerdHeartburn.gerdDetails"},
			{"specificConditions.pancreatitis.hasPancreatitis", "specificConditions.pancreatitis.numberOfAttacks", "specificConditions.pancreatitis.cause"},
			{"socialHistory.smokingSummary", "socialHistory.alcoholSummary", "socialHistory.marijuanaSummary", "socialHistory.drugSummary"},
			{"socialHistory.employmentStatus", "socialHistory.employmentDetails", "socialHistory.financialSituation", "socialHistory.educationBackground"},
		},
	},
}

// AllLeafPaths returns the ordered leaf paths for a section. An unknown
// section yields nil: nothing to ask.
func AllLeafPaths(s Section) []string {
	schema, ok := schemas[s]
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(schema.fields))
	for _, f := range schema.fields {
		paths = append(paths, f.Path)
	}
	return paths
}

// QuestionGroups returns the ordered question groups for a section.
func QuestionGroups(s Section) [][]string {
	schema, ok := schemas[s]
	if !ok {
		return nil
	}
	groups := make([][]string, len(schema.groups))
	for i, g := range schema.groups {
		groups[i] = append([]string(nil), g...)
	}
	return groups
}

// Fields returns the full field descriptions for a section, used to build
// the schema description handed to the extraction collaborator.
func Fields(s Section) []Field {
	schema, ok := schemas[s]
	if !ok {
		return nil
	}
	return append([]Field(nil), schema.fields...)
}

// KnownPath reports whether path is a declared leaf of the section. The
// engine drops any extracted path this returns false for.
func KnownPath(s Section, path string) bool {
	schema, ok := schemas[s]
	if !ok {
		return false
	}
	for _, f := range schema.fields {
		if f.Path == path {
			return true
		}
	}
	return false
}

// Prompt returns the question text for a leaf path, or "" if unknown.
func Prompt(s Section, path string) string {
	schema, ok := schemas[s]
	if !ok {
		return ""
	}
	for _, f := range schema.fields {
		if f.Path == path {
			return f.Prompt
		}
	}
	return ""
}

// Title returns the display name for a section.
func Title(s Section) string {
	switch s {
	case SectionDemographics:
		return "Demographics"
	case SectionWeightHistory:
		return "Weight History"
	case SectionMedicalHistory:
		return "Medical History"
	default:
		return string(s)
	}
}
