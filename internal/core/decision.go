package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/metrics"
	"github.com/spellhq/spellgate/internal/model"
)

// DecisionService answers "is this execution, right now, allowed?" without
// knowing what the execution does. It is a gate, not a policy engine: the
// answer combines token validity, the token's fixed scope set, live key
// status, and live entitlement state, and nothing else.
type DecisionService struct {
	tokens       *TokenService
	keys         *DeveloperKeyService
	entitlements *EntitlementService
	logger       zerolog.Logger
}

func NewDecisionService(tokens *TokenService, keys *DeveloperKeyService, entitlements *EntitlementService, logger zerolog.Logger) *DecisionService {
	return &DecisionService{tokens: tokens, keys: keys, entitlements: entitlements, logger: logger}
}

// Check returns the allow/deny decision. Pure read; no mutation.
//
// Invalid tokens only bump a counter, no audit, so a flood of garbage
// tokens cannot swamp the audit trail. Storage trouble fails closed: the
// caller sees allowed=false, and the returned error keeps infrastructure
// denials distinguishable from legitimate ones in logs.
func (s *DecisionService) Check(ctx context.Context, accessToken, subjectID, requestedScope string) (bool, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		metrics.InvalidTokens.Inc()
		return false, nil
	}

	// Revoked keys lose access immediately, even for unexpired tokens.
	key, err := s.keys.GetByID(ctx, claims.KeyID)
	if err != nil {
		metrics.CheckDecisions.WithLabelValues("denied").Inc()
		return false, err
	}
	if key.Status == model.KeyStatusRevoked {
		metrics.CheckDecisions.WithLabelValues("denied").Inc()
		return false, nil
	}

	if !claims.HasScope(requestedScope) {
		metrics.CheckDecisions.WithLabelValues("denied").Inc()
		return false, nil
	}

	active, err := s.entitlements.IsActive(ctx, subjectID, requestedScope)
	if err != nil {
		metrics.CheckDecisions.WithLabelValues("denied").Inc()
		return false, err
	}
	if !active {
		metrics.CheckDecisions.WithLabelValues("denied").Inc()
		return false, nil
	}

	metrics.CheckDecisions.WithLabelValues("allowed").Inc()
	return true, nil
}
