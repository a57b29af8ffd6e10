package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/navigation"
	"github.com/nrbnayon/silver-gym/utils"
	"github.com/nrbnayon/silver-gym/wizard"
	"go.uber.org/zap"
)

// RouteProtection redirects page requests per navigation.Decide.
// This should be called after LoadSession
func RouteProtection(metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := GetStateFromContext(r.Context())
			decision := navigation.Decide(r.URL.Path, state.IsAuthenticated)
			if decision.Action == navigation.Allow {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("navigation redirected",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path),
				zap.String("redirect_to", decision.RedirectTo),
				zap.String("reason", decision.Reason))
			metrics.RecordRedirect(decision.RedirectTo)
			http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
		})
	}
}

// StepValidator is the part of the wizard controller the gate needs.
type StepValidator interface {
	ValidateStep(ctx context.Context, flowID uuid.UUID, required ...models.SignupStep) (bool, error)
}

// FlowReader extracts the wizard flow ID from a request.
type FlowReader interface {
	FlowID(r *http.Request) (uuid.UUID, bool)
}

// SignupGate only lets a request through when the flow has completed the
// required steps. Pages are sent back to the wizard entry with a 303; API
// callers get a JSON body naming the page to go to.
func SignupGate(steps StepValidator, flows FlowReader, logger *zap.Logger, required ...models.SignupStep) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok := false
			if flowID, found := flows.FlowID(r); found {
				var err error
				ok, err = steps.ValidateStep(r.Context(), flowID, required...)
				if err != nil {
					logger.Error("failed to validate sign-up steps",
						zap.String("request_id", GetRequestIDFromContext(r.Context())),
						zap.String("flow_id", flowID.String()),
						zap.Error(err))
					_ = utils.WriteInternalServerError(w, "")
					return
				}
			}
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			if utils.WantsJSON(r) {
				_ = utils.WriteStepRequired(w, wizard.EntryPath, "Please complete the previous sign-up steps first")
				return
			}
			http.Redirect(w, r, wizard.EntryPath, http.StatusSeeOther)
		})
	}
}
