package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/auth"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/utils"
	"github.com/nrbnayon/silver-gym/wizard"
	"go.uber.org/zap"
)

// VerifyRequest carries the code the user typed.
type VerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// SignupStatusResponse describes where a flow stands.
type SignupStatusResponse struct {
	FlowID       uuid.UUID                  `json:"flow_id"`
	CurrentStep  models.SignupStep          `json:"current_step"`
	NextPath     string                     `json:"next_path"`
	Steps        map[models.SignupStep]bool `json:"steps"`
	Signup       *SignupSummary             `json:"signup,omitempty"`
	Verification *VerificationSummary       `json:"verification,omitempty"`
	Business     *models.BusinessInfo       `json:"business,omitempty"`
	Contact      *models.ContactInfo        `json:"contact,omitempty"`
}

// SignupSummary is the first page's data without the password hash.
type SignupSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// VerificationSummary is the verification step as the client sees it.
type VerificationSummary struct {
	Complete bool   `json:"complete"`
	State    string `json:"state,omitempty"`
	Attempts int    `json:"attempts"`
	SentAt   string `json:"sent_at,omitempty"`
}

// SignupCompleteResponse is returned when the owner account is created.
type SignupCompleteResponse struct {
	User       UserResponse `json:"user"`
	RedirectTo string       `json:"redirect_to"`
}

// SignupHandler serves the sign-up wizard API
type SignupHandler struct {
	wizard  *wizard.Controller
	flows   *wizard.FlowCookie
	tokens  *auth.TokenManager
	cookies *auth.Cookies
	audit   *audit.AuditService
	logger  *zap.Logger
}

// NewSignupHandler creates a new SignupHandler
func NewSignupHandler(
	controller *wizard.Controller,
	flows *wizard.FlowCookie,
	tokens *auth.TokenManager,
	cookies *auth.Cookies,
	auditSvc *audit.AuditService,
	logger *zap.Logger,
) *SignupHandler {
	return &SignupHandler{
		wizard:  controller,
		flows:   flows,
		tokens:  tokens,
		cookies: cookies,
		audit:   auditSvc,
		logger:  logger,
	}
}

// HandleSignup handles POST /api/v1/signup. It starts a flow when the caller
// has none (or its flow expired) and stores the account details.
func (h *SignupHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in wizard.SignupInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	flowID, ok := h.flows.FlowID(r)
	if ok {
		if _, err := h.wizard.Load(ctx, flowID); err != nil {
			if !errors.Is(err, services.ErrProgressNotFound) {
				HandleServiceError(w, err, h.logger)
				return
			}
			ok = false
		}
	}
	if !ok {
		p, err := h.wizard.Start(ctx)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		flowID = p.FlowID
		h.flows.Set(w, flowID)
	}

	p, err := h.wizard.SubmitSignup(ctx, flowID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.logger.Debug("sign-up details stored",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("flow_id", flowID.String()))
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleVerify handles POST /api/v1/signup/verification
func (h *SignupHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.flowOrReject(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.wizard.Verify(r.Context(), flowID, req.Code)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleResendCode handles POST /api/v1/signup/verification/resend
func (h *SignupHandler) HandleResendCode(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.flowOrReject(w, r)
	if !ok {
		return
	}
	p, err := h.wizard.ResendCode(r.Context(), flowID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleBusiness handles POST /api/v1/signup/business
func (h *SignupHandler) HandleBusiness(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.flowOrReject(w, r)
	if !ok {
		return
	}

	var in wizard.BusinessInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.wizard.SubmitBusiness(r.Context(), flowID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleContact handles POST /api/v1/signup/contact
func (h *SignupHandler) HandleContact(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.flowOrReject(w, r)
	if !ok {
		return
	}

	var in wizard.ContactInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.wizard.SubmitContact(r.Context(), flowID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleComplete handles POST /api/v1/signup/complete. On success the new
// owner is signed in and the flow cookie is dropped.
func (h *SignupHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	flowID, ok := h.flowOrReject(w, r)
	if !ok {
		return
	}

	user, err := h.wizard.Finish(ctx, flowID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.flows.Clear(w)

	token, expiresAt, err := h.tokens.Issue(user, false)
	if err != nil {
		// The account exists; the owner can still sign in by hand.
		h.logger.Error("failed to issue session for new owner",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	} else {
		h.cookies.Set(w, token, expiresAt, false)
	}

	h.audit.LogSignupCompleted(requestMeta(r), user)
	_ = utils.WriteCreated(w, SignupCompleteResponse{
		User:       userToResponse(user),
		RedirectTo: wizard.StepPath(models.StepDone),
	})
}

// HandleStatus handles GET /api/v1/signup/status
func (h *SignupHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.flows.FlowID(r)
	if !ok {
		_ = utils.WriteOK(w, statusResponse(nil))
		return
	}
	p, err := h.wizard.Load(r.Context(), flowID)
	if err != nil {
		if errors.Is(err, services.ErrProgressNotFound) {
			h.flows.Clear(w)
			_ = utils.WriteOK(w, statusResponse(nil))
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statusResponse(p))
}

// HandleCancel handles DELETE /api/v1/signup and forgets the flow.
func (h *SignupHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if flowID, ok := h.flows.FlowID(r); ok {
		if err := h.wizard.ClearAuthState(r.Context(), flowID); err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
	}
	h.flows.Clear(w)
	utils.WriteNoContent(w)
}

// flowOrReject returns the caller's flow ID or answers with a step_required
// pointing at the wizard entry.
func (h *SignupHandler) flowOrReject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	flowID, ok := h.flows.FlowID(r)
	if !ok {
		_ = utils.WriteStepRequired(w, wizard.EntryPath, "No sign-up in progress")
		return uuid.Nil, false
	}
	return flowID, true
}

func statusResponse(p *models.SignupProgress) SignupStatusResponse {
	resp := SignupStatusResponse{
		CurrentStep: models.StepSignup,
		NextPath:    wizard.EntryPath,
		Steps:       make(map[models.SignupStep]bool, len(models.SignupSteps)),
	}
	for _, step := range models.SignupSteps {
		resp.Steps[step] = wizard.IsStepComplete(p, step)
	}
	if p == nil {
		return resp
	}

	next := wizard.FirstIncomplete(p)
	resp.FlowID = p.FlowID
	resp.CurrentStep = next
	resp.NextPath = wizard.StepPath(next)
	resp.Business = p.Business
	resp.Contact = p.Contact
	if p.Signup != nil {
		resp.Signup = &SignupSummary{Name: p.Signup.Name, Email: p.Signup.Email, Phone: p.Signup.Phone}
		v := &VerificationSummary{
			Complete: p.Verification.Complete,
			State:    p.Verification.State,
			Attempts: p.Verification.Attempts,
		}
		if !p.Verification.SentAt.IsZero() {
			v.SentAt = p.Verification.SentAt.Format(time.RFC3339)
		}
		resp.Verification = v
	}
	return resp
}
