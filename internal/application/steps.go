// Package application implements the technician application workflow: the
// draft store, per-step validation and merging, document attachments, the
// submission gate, and the review workflow.
package application

import "localpro-backend/internal/models"

// Step names, in wizard order.
const (
	StepPersonal     = "Personal Details"
	StepIdentity     = "Identity Verification"
	StepSkills       = "Skills & Services"
	StepAvailability = "Availability"
	StepBank         = "Bank Details"
	StepDocuments    = "Documents"
	StepAgreement    = "Agreement"
	StepReview       = "Review"
)

// Document file fields accepted on the Documents step.
const (
	FieldPassportPhoto = "passportPhoto"
	FieldIDFront       = "idFront"
	FieldIDBack        = "idBack"
	FieldAddressProof  = "addressProof"
	FieldCertificate   = "certificate"
)

// Step describes one named section of the application.
type Step struct {
	Name string
	// Section selects the sub-document the payload merges into; empty for
	// the Agreement and Review steps, which are special-cased.
	Section string
	// Required steps must all be complete before submission.
	Required bool
	// FileFields lists the upload fields this step accepts.
	FileFields []string
	// Schema validates the step payload; nil skips schema validation.
	Schema map[string]interface{}
}

// Steps is the fixed, ordered set of recognized steps.
var Steps = []Step{
	{Name: StepPersonal, Section: "personal", Required: true, Schema: personalSchema},
	{Name: StepIdentity, Section: "identity", Required: true, Schema: identitySchema},
	{Name: StepSkills, Section: "skills", Required: true, Schema: skillsSchema},
	{Name: StepAvailability, Section: "availability", Required: true, Schema: availabilitySchema},
	{Name: StepBank, Section: "bank", Required: true, Schema: bankSchema},
	{Name: StepDocuments, Section: "documents", Required: true, FileFields: []string{
		FieldPassportPhoto, FieldIDFront, FieldIDBack, FieldAddressProof, FieldCertificate,
	}},
	{Name: StepAgreement, Required: true, Schema: agreementSchema},
	{Name: StepReview, Required: false},
}

// StepByName looks up a step definition.
func StepByName(name string) (Step, bool) {
	for _, s := range Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// RequiredSteps returns the names every submission must have completed.
func RequiredSteps() []string {
	out := make([]string, 0, len(Steps))
	for _, s := range Steps {
		if s.Required {
			out = append(out, s.Name)
		}
	}
	return out
}

// MissingSteps computes requiredSteps - stepsCompleted, in wizard order, so
// the client can route the user to the first missing step.
func MissingSteps(app *models.Application) []string {
	missing := []string{}
	for _, s := range Steps {
		if s.Required && !app.HasCompletedStep(s.Name) {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// shallowMerge merges src into dst: new keys overwrite, keys absent from src
// are retained. This is what lets a user resume a step with a partial
// re-submission without losing previously entered fields.
func shallowMerge(dst, src map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		result[k] = v
	}
	for k, v := range src {
		result[k] = v
	}
	return result
}

// coerceBool interprets the loosely-typed agreement value sent by clients.
func coerceBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1" || val == "yes" || val == "on"
	case float64:
		return val != 0
	default:
		return false
	}
}

// sectionOf returns the named sub-document of the application.
func sectionOf(app *models.Application, section string) map[string]interface{} {
	switch section {
	case "personal":
		return app.Personal
	case "identity":
		return app.Identity
	case "skills":
		return app.Skills
	case "availability":
		return app.Availability
	case "bank":
		return app.Bank
	case "documents":
		return app.Documents
	}
	return nil
}

// setSection replaces the named sub-document of the application.
func setSection(app *models.Application, section string, data map[string]interface{}) {
	switch section {
	case "personal":
		app.Personal = data
	case "identity":
		app.Identity = data
	case "skills":
		app.Skills = data
	case "availability":
		app.Availability = data
	case "bank":
		app.Bank = data
	case "documents":
		app.Documents = data
	}
}
