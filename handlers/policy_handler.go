package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/upb/paylynx-policy/middleware"
	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/services/policy"
	"github.com/upb/paylynx-policy/utils"
	"go.uber.org/zap"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 200
)

// CheckPaymentRequest is the body of POST /api/v1/policy/check
type CheckPaymentRequest struct {
	Amount    *decimal.Decimal `json:"amount" validate:"required,decimal_gte0"`
	Recipient string           `json:"recipient,omitempty" validate:"max=256"`
	Context   string           `json:"context,omitempty" validate:"max=4096"`
}

// PaymentBlockedResponse is written with 403 when the policy denies a payment
type PaymentBlockedResponse struct {
	Error           string                `json:"error"`
	Message         string                `json:"message"`
	Reason          string                `json:"reason"`
	Policy          string                `json:"policy"`
	BlockedBy       *models.BlockedBy     `json:"blocked_by,omitempty"`
	TIP403Compliant bool                  `json:"tip403_compliant"`
	PolicyInfo      *models.PolicyVerdict `json:"policy_info"`
}

// PolicyEngine runs payment checks and status queries
type PolicyEngine interface {
	Evaluate(ctx context.Context, req policy.PaymentRequest) (*models.PolicyVerdict, error)
	GetStatus(ctx context.Context, userID string) (*models.StatusReport, error)
}

// SettingsService reads and replaces a user's policy settings
type SettingsService interface {
	Resolve(ctx context.Context, userID string) models.PolicySettings
	Update(ctx context.Context, userID string, record *models.PolicySettingsRecord) (models.PolicySettings, error)
}

// DecisionHistory lists a user's past decisions
type DecisionHistory interface {
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.DecisionLog, error)
}

// SettingsAuditor records settings changes
type SettingsAuditor interface {
	LogSettingsUpdated(userID, requestID string) error
}

// PolicyHandler handles the TIP-403 policy endpoints
type PolicyHandler struct {
	engine    PolicyEngine
	settings  SettingsService
	decisions DecisionHistory
	auditor   SettingsAuditor
	logger    *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler. decisions and auditor may be
// nil when the audit trail is disabled.
func NewPolicyHandler(engine PolicyEngine, settings SettingsService, decisions DecisionHistory, auditor SettingsAuditor, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		engine:    engine,
		settings:  settings,
		decisions: decisions,
		auditor:   auditor,
		logger:    logger,
	}
}

// HandleCheckPayment handles POST /api/v1/policy/check
func (h *PolicyHandler) HandleCheckPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CheckPaymentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	verdict, err := h.engine.Evaluate(ctx, policy.PaymentRequest{
		UserID:    userID,
		Amount:    *req.Amount,
		Recipient: req.Recipient,
		Context:   req.Context,
		RequestID: middleware.GetRequestIDFromContext(ctx),
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if !verdict.Allowed {
		_ = utils.WriteJSON(w, http.StatusForbidden, PaymentBlockedResponse{
			Error:           "payment_blocked",
			Message:         "Payment blocked by TIP-403 policy",
			Reason:          verdict.Reason,
			Policy:          verdict.PolicyName,
			BlockedBy:       verdict.BlockedBy,
			TIP403Compliant: true,
			PolicyInfo:      verdict,
		})
		return
	}

	_ = utils.WriteOK(w, verdict)
}

// HandleGetLimits handles GET /api/v1/policy/limits
func (h *PolicyHandler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	report, err := h.engine.GetStatus(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, report)
}

// HandleGetInfo handles GET /api/v1/policy/info
func (h *PolicyHandler) HandleGetInfo(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, policy.FrameworkInfo())
}

// HandleGetSettings handles GET /api/v1/policy/settings
func (h *PolicyHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, h.settings.Resolve(r.Context(), userID))
}

// HandleUpdateSettings handles PUT /api/v1/policy/settings
func (h *PolicyHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var record models.PolicySettingsRecord
	if err := utils.DecodeJSON(r, &record); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	settings, err := h.settings.Update(ctx, userID, &record)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if h.auditor != nil {
		if err := h.auditor.LogSettingsUpdated(userID, middleware.GetRequestIDFromContext(ctx)); err != nil {
			h.logger.Warn("settings change not audited", zap.String("user_id", userID), zap.Error(err))
		}
	}

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Data:    settings,
		Message: "policy settings updated",
	})
}

// HandleListDecisions handles GET /api/v1/policy/decisions?limit=&offset=
func (h *PolicyHandler) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.decisions == nil {
		_ = utils.WriteServiceUnavailable(w, "Decision audit trail is disabled")
		return
	}

	limit, err := queryInt(r, "limit", defaultDecisionLimit)
	if err != nil || limit <= 0 || limit > maxDecisionLimit {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxDecisionLimit), nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must be a non-negative integer", nil)
		return
	}

	logs, err := h.decisions.GetByUserID(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list decisions", zap.String("user_id", userID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to list decisions")
		return
	}
	if logs == nil {
		logs = []*models.DecisionLog{}
	}

	_ = utils.WriteOK(w, logs)
}

// requireUser returns the authenticated user id or writes 401
func (h *PolicyHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		h.logger.Error("missing user id in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	return userID, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
