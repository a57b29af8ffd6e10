// Package wizard drives the multi-step gym owner sign-up: account details,
// contact verification, business information and contact information.
//
// All progress lives in one models.SignupProgress record keyed by a flow ID
// that the browser carries in a cookie. Pages gate on ValidateStep; writes go
// through the Controller, which refuses to complete a step while an earlier
// one is still open.
package wizard

import (
	"github.com/nrbnayon/silver-gym/models"
)

// EntryPath is where an incomplete flow is sent back to.
const EntryPath = "/sign-up"

var stepPaths = map[models.SignupStep]string{
	models.StepSignup:       "/sign-up",
	models.StepVerification: "/sign-up/verification",
	models.StepBusiness:     "/sign-up/business-info",
	models.StepContact:      "/sign-up/contact-info",
	models.StepDone:         "/dashboard",
}

// StepPath returns the page that collects step.
func StepPath(step models.SignupStep) string {
	if p, ok := stepPaths[step]; ok {
		return p
	}
	return EntryPath
}

// IsStepComplete reports whether progress holds a finished step. Data steps
// count as soon as a non-empty payload is present.
func IsStepComplete(p *models.SignupProgress, step models.SignupStep) bool {
	if p == nil {
		return false
	}
	switch step {
	case models.StepSignup:
		return !p.Signup.Empty()
	case models.StepVerification:
		return p.Verification.Complete
	case models.StepBusiness:
		return !p.Business.Empty()
	case models.StepContact:
		return !p.Contact.Empty()
	default:
		return false
	}
}

// StepsComplete reports whether every step in required is complete. Ordering
// is not re-checked; a record with business info but no sign-up data still
// passes a gate that only asks for business.
func StepsComplete(p *models.SignupProgress, required ...models.SignupStep) bool {
	for _, step := range required {
		if !IsStepComplete(p, step) {
			return false
		}
	}
	return true
}

// FirstIncomplete returns the earliest open step, or StepDone.
func FirstIncomplete(p *models.SignupProgress) models.SignupStep {
	for _, step := range models.SignupSteps {
		if !IsStepComplete(p, step) {
			return step
		}
	}
	return models.StepDone
}

// PrerequisitesMet reports whether every step before step is complete.
func PrerequisitesMet(p *models.SignupProgress, step models.SignupStep) bool {
	idx := step.Index()
	if idx < 0 {
		return false
	}
	for _, prior := range models.SignupSteps[:min(idx, len(models.SignupSteps))] {
		if !IsStepComplete(p, prior) {
			return false
		}
	}
	return true
}
