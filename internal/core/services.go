package core

import (
	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/config"
)

type Services struct {
	Audit        *AuditService
	Ledger       *LedgerService
	Entitlement  *EntitlementService
	DeveloperKey *DeveloperKeyService
	Token        *TokenService
	Decision     *DecisionService
	Scope        *ScopeService
	Spell        *SpellService
	Webhook      *WebhookProcessor
}

func NewServices(db DB, cfg *config.Config, source SubscriptionSource, logger zerolog.Logger) *Services {
	audit := NewAuditService(db)
	ledger := NewLedgerService(db)
	entitlement := NewEntitlementService(db, source)
	keys := NewDeveloperKeyService(db)
	tokens := NewTokenService(db, keys, []byte(cfg.TokenSigningKey), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	return &Services{
		Audit:        audit,
		Ledger:       ledger,
		Entitlement:  entitlement,
		DeveloperKey: keys,
		Token:        tokens,
		Decision:     NewDecisionService(tokens, keys, entitlement, logger),
		Scope:        NewScopeService(db),
		Spell:        NewSpellService(db),
		Webhook:      NewWebhookProcessor(db, ledger, entitlement, []byte(cfg.WebhookSecret), cfg.WebhookTolerance, logger),
	}
}
