package wizard

import (
	"encoding/json"
	"fmt"

	"github.com/nrbnayon/silver-gym/models"
)

// Named slots used by older clients that kept the wizard in browser storage.
const (
	SlotSignupData           = "signupData"
	SlotBusinessInfo         = "businessInfo"
	SlotContactInfo          = "contactInfo"
	SlotVerificationComplete = "verification_complete"
	SlotVerificationState    = "verification_state"
)

// Slots lists every legacy slot name.
var Slots = []string{
	SlotSignupData,
	SlotBusinessInfo,
	SlotContactInfo,
	SlotVerificationComplete,
	SlotVerificationState,
}

// FromSlots imports legacy slot values into progress. Missing or empty slots
// leave the matching step open; verification_complete counts only when it
// is exactly "true".
func FromSlots(progress *models.SignupProgress, slots map[string]string) error {
	if raw := slots[SlotSignupData]; raw != "" {
		var data models.SignupData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return fmt.Errorf("decode %s: %w", SlotSignupData, err)
		}
		progress.Signup = &data
	}
	if raw := slots[SlotBusinessInfo]; raw != "" {
		var info models.BusinessInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return fmt.Errorf("decode %s: %w", SlotBusinessInfo, err)
		}
		progress.Business = &info
	}
	if raw := slots[SlotContactInfo]; raw != "" {
		var info models.ContactInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return fmt.Errorf("decode %s: %w", SlotContactInfo, err)
		}
		progress.Contact = &info
	}

	progress.Verification.Complete = slots[SlotVerificationComplete] == "true"
	progress.Verification.State = slots[SlotVerificationState]
	progress.CurrentStep = FirstIncomplete(progress)
	return nil
}

// ToSlots renders progress as legacy slot values. Steps without data are
// omitted; the password hash never leaves the server.
func ToSlots(progress *models.SignupProgress) (map[string]string, error) {
	slots := make(map[string]string, len(Slots))

	if !progress.Signup.Empty() {
		data := *progress.Signup
		data.PasswordHash = ""
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", SlotSignupData, err)
		}
		slots[SlotSignupData] = string(raw)
	}
	if !progress.Business.Empty() {
		raw, err := json.Marshal(progress.Business)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", SlotBusinessInfo, err)
		}
		slots[SlotBusinessInfo] = string(raw)
	}
	if !progress.Contact.Empty() {
		raw, err := json.Marshal(progress.Contact)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", SlotContactInfo, err)
		}
		slots[SlotContactInfo] = string(raw)
	}

	if progress.Verification.Complete {
		slots[SlotVerificationComplete] = "true"
	} else {
		slots[SlotVerificationComplete] = "false"
	}
	if progress.Verification.State != "" {
		slots[SlotVerificationState] = progress.Verification.State
	}
	return slots, nil
}
