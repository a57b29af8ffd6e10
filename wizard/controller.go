package wizard

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/config"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Verification states mirrored into the verification_state slot.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationLocked   = "locked"
)

// SignupInput is the first wizard page.
type SignupInput struct {
	Name            string `json:"name" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// BusinessInput describes the gym.
type BusinessInput struct {
	BusinessName string `json:"business_name" validate:"required,min=2,max=120"`
	BusinessType string `json:"business_type" validate:"required,oneof=gym fitness_center yoga_studio crossfit martial_arts other"`
	Branches     int    `json:"branches" validate:"min=1,max=500"`
	MemberCount  string `json:"member_count" validate:"omitempty,oneof=1-50 51-200 201-500 500+"`
}

// ContactInput is the gym's contact block.
type ContactInput struct {
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,min=2,max=80"`
	Country    string `json:"country" validate:"required,max=80"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=20"`
	Phone      string `json:"phone" validate:"required,phone"`
}

// Controller owns every write to a sign-up flow.
type Controller struct {
	progress repositories.SignupProgressRepository
	users    repositories.UserRepository
	txMgr    repositories.TransactionManager
	sender   CodeSender
	cfg      config.WizardConfig
	metrics  *observability.Metrics
	logger   *zap.Logger

	now      func() time.Time
	genCode  func() (string, error)
	hashCost int
}

// NewController creates a new wizard controller
func NewController(
	progress repositories.SignupProgressRepository,
	users repositories.UserRepository,
	txMgr repositories.TransactionManager,
	sender CodeSender,
	cfg config.WizardConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		progress: progress,
		users:    users,
		txMgr:    txMgr,
		sender:   sender,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		genCode:  generateCode,
		hashCost: bcrypt.DefaultCost,
	}
}

// Start opens a new, empty flow.
func (c *Controller) Start(ctx context.Context) (*models.SignupProgress, error) {
	p := models.NewSignupProgress()
	p.CreatedAt = c.now()
	p.UpdatedAt = p.CreatedAt
	if err := c.progress.Save(ctx, p); err != nil {
		return nil, services.Wrap(services.ErrDatabaseError, err)
	}
	c.logger.Debug("sign-up flow started", zap.String("flow_id", p.FlowID.String()))
	return p, nil
}

// Load returns the flow, treating records older than the progress TTL as gone.
func (c *Controller) Load(ctx context.Context, flowID uuid.UUID) (*models.SignupProgress, error) {
	p, err := c.progress.Get(ctx, flowID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrProgressNotFound
		}
		return nil, services.Wrap(services.ErrDatabaseError, err)
	}
	if c.cfg.ProgressTTL > 0 && c.now().Sub(p.UpdatedAt) > c.cfg.ProgressTTL {
		_ = c.progress.Delete(ctx, flowID)
		return nil, services.ErrProgressNotFound
	}
	return p, nil
}

// ValidateStep reports whether every required step of the flow is complete.
// An unknown or expired flow is simply incomplete.
func (c *Controller) ValidateStep(ctx context.Context, flowID uuid.UUID, required ...models.SignupStep) (bool, error) {
	p, err := c.Load(ctx, flowID)
	if err != nil {
		if errors.Is(err, services.ErrProgressNotFound) {
			return false, nil
		}
		return false, err
	}
	return StepsComplete(p, required...), nil
}

// CompleteStep applies write to the flow as the result of step. Steps before
// step must already be complete; otherwise ErrStepOutOfOrder is returned with
// the page of the first open step under "redirect_to".
func (c *Controller) CompleteStep(ctx context.Context, flowID uuid.UUID, step models.SignupStep, write func(*models.SignupProgress) error) (*models.SignupProgress, error) {
	p, err := c.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if !PrerequisitesMet(p, step) {
		open := FirstIncomplete(p)
		c.metrics.RecordSignupStep(string(step) + "_out_of_order")
		return nil, services.ErrStepOutOfOrder.
			WithDetail("step", string(step)).
			WithDetail("redirect_to", StepPath(open))
	}

	if err := write(p); err != nil {
		return nil, err
	}
	p.CurrentStep = FirstIncomplete(p)
	p.UpdatedAt = c.now()

	if err := c.progress.Save(ctx, p); err != nil {
		return nil, services.Wrap(services.ErrDatabaseError, err)
	}
	return p, nil
}

// SubmitSignup stores the account details and sends a verification code.
// Changing the details restarts verification.
func (c *Controller) SubmitSignup(ctx context.Context, flowID uuid.UUID, in SignupInput) (*models.SignupProgress, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(in.Email)
	phone := strings.TrimSpace(in.Phone)

	if err := c.ensureAvailable(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), c.hashCost)
	if err != nil {
		return nil, services.WrapInternal("hash password", err)
	}

	p, err := c.CompleteStep(ctx, flowID, models.StepSignup, func(p *models.SignupProgress) error {
		p.Signup = &models.SignupData{
			Name:         strings.TrimSpace(in.Name),
			Email:        email,
			Phone:        phone,
			PasswordHash: string(hash),
		}
		p.Verification = models.VerificationState{}
		return c.issueCode(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSignupStep(string(models.StepSignup))
	return p, nil
}

// ResendCode replaces the outstanding code with a fresh one.
func (c *Controller) ResendCode(ctx context.Context, flowID uuid.UUID) (*models.SignupProgress, error) {
	return c.CompleteStep(ctx, flowID, models.StepVerification, func(p *models.SignupProgress) error {
		if p.Verification.Complete {
			return nil
		}
		return c.issueCode(ctx, p)
	})
}

// Verify checks code against the outstanding one. Each wrong guess counts
// toward the attempt limit; once it is reached the flow is locked until a
// new code is requested.
func (c *Controller) Verify(ctx context.Context, flowID uuid.UUID, code string) (*models.SignupProgress, error) {
	var verifyErr error
	p, err := c.CompleteStep(ctx, flowID, models.StepVerification, func(p *models.SignupProgress) error {
		v := &p.Verification
		if v.Complete {
			return nil
		}
		if v.CodeHash == "" {
			return services.ErrInvalidCode.WithDetail("reason", "no code issued")
		}
		if v.Attempts >= c.cfg.MaxCodeAttempts {
			v.State = VerificationLocked
			return services.ErrTooManyAttempts
		}
		if c.cfg.CodeTTL > 0 && c.now().Sub(v.SentAt) > c.cfg.CodeTTL {
			return services.ErrInvalidCode.WithDetail("reason", "code expired")
		}

		if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(strings.TrimSpace(code))) != nil {
			v.Attempts++
			remaining := c.cfg.MaxCodeAttempts - v.Attempts
			if remaining <= 0 {
				v.State = VerificationLocked
			}
			// Persist the failed attempt, then report it.
			verifyErr = services.ErrInvalidCode.WithDetail("attempts_remaining", remaining)
			return nil
		}

		v.Complete = true
		v.State = VerificationVerified
		v.CodeHash = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	if verifyErr != nil {
		c.metrics.RecordSignupStep(string(models.StepVerification) + "_failed")
		return nil, verifyErr
	}
	c.metrics.RecordSignupStep(string(models.StepVerification))
	return p, nil
}

// SubmitBusiness stores the gym's business details.
func (c *Controller) SubmitBusiness(ctx context.Context, flowID uuid.UUID, in BusinessInput) (*models.SignupProgress, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	p, err := c.CompleteStep(ctx, flowID, models.StepBusiness, func(p *models.SignupProgress) error {
		p.Business = &models.BusinessInfo{
			BusinessName: strings.TrimSpace(in.BusinessName),
			BusinessType: in.BusinessType,
			Branches:     in.Branches,
			MemberCount:  in.MemberCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSignupStep(string(models.StepBusiness))
	return p, nil
}

// SubmitContact stores the gym's contact details.
func (c *Controller) SubmitContact(ctx context.Context, flowID uuid.UUID, in ContactInput) (*models.SignupProgress, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	p, err := c.CompleteStep(ctx, flowID, models.StepContact, func(p *models.SignupProgress) error {
		p.Contact = &models.ContactInfo{
			Address:    strings.TrimSpace(in.Address),
			City:       strings.TrimSpace(in.City),
			Country:    strings.TrimSpace(in.Country),
			PostalCode: strings.TrimSpace(in.PostalCode),
			Phone:      strings.TrimSpace(in.Phone),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSignupStep(string(models.StepContact))
	return p, nil
}

// Finish creates the gym owner account from a fully completed flow and
// clears the flow. The returned user can be signed in straight away.
func (c *Controller) Finish(ctx context.Context, flowID uuid.UUID) (*models.User, error) {
	p, err := c.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if open := FirstIncomplete(p); open != models.StepDone {
		return nil, services.ErrStepOutOfOrder.
			WithDetail("step", string(models.StepDone)).
			WithDetail("redirect_to", StepPath(open))
	}

	user := models.NewUser(p.Signup.Name, p.Signup.Email, p.Signup.Phone, p.Signup.PasswordHash, c.cfg.OwnerRole)

	_, err = services.WithTransaction(ctx, c.txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		if err := c.users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return struct{}{}, services.ErrDuplicateEmail
			}
			return struct{}{}, services.Wrap(services.ErrDatabaseError, err)
		}
		if err := c.progress.WithTx(tx).Delete(ctx, flowID); err != nil {
			return struct{}{}, services.Wrap(services.ErrDatabaseError, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordSignupStep(string(models.StepDone))
	c.logger.Info("gym owner registered",
		zap.String("user_id", user.ID.String()),
		zap.String("business_name", p.Business.BusinessName))
	return user, nil
}

// ClearAuthState drops everything stored for the flow.
func (c *Controller) ClearAuthState(ctx context.Context, flowID uuid.UUID) error {
	if err := c.progress.Delete(ctx, flowID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return services.Wrap(services.ErrDatabaseError, err)
	}
	return nil
}

// PurgeStale removes flows idle for longer than the progress TTL.
func (c *Controller) PurgeStale(ctx context.Context) (int64, error) {
	if c.cfg.ProgressTTL <= 0 {
		return 0, nil
	}
	n, err := c.progress.DeleteStale(ctx, c.now().Add(-c.cfg.ProgressTTL))
	if err != nil {
		return 0, services.Wrap(services.ErrDatabaseError, err)
	}
	if n > 0 {
		c.logger.Info("purged stale sign-up flows", zap.Int64("count", n))
	}
	return n, nil
}

func (c *Controller) ensureAvailable(ctx context.Context, email, phone string) error {
	if _, err := c.users.GetByEmail(ctx, email); err == nil {
		return services.ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return services.Wrap(services.ErrDatabaseError, err)
	}
	if phone == "" {
		return nil
	}
	if _, err := c.users.GetByPhone(ctx, phone); err == nil {
		return services.ErrDuplicatePhone
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return services.Wrap(services.ErrDatabaseError, err)
	}
	return nil
}

func (c *Controller) issueCode(ctx context.Context, p *models.SignupProgress) error {
	code, err := c.genCode()
	if err != nil {
		return services.WrapInternal("generate verification code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), c.hashCost)
	if err != nil {
		return services.WrapInternal("hash verification code", err)
	}

	if err := c.sender.SendCode(ctx, p.Signup.Email, p.Signup.Name, code); err != nil {
		return services.Wrap(services.ErrMailDelivery, err)
	}

	p.Verification = models.VerificationState{
		State:    VerificationPending,
		CodeHash: string(hash),
		SentAt:   c.now(),
	}
	return nil
}

// generateCode returns a uniformly random six digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
