// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/pkg/pointer"
)

// ErrRegistrationFailed is the only conflict a caller ever sees. It does not
// reveal whether the email or the login collided.
var ErrRegistrationFailed = apperr.Conflict("Registration failed")

// # Decisions

// Action is the outcome class of one reconciliation.
type Action string

const (
	ActionCreate Action = "create"
	ActionAttach Action = "attach"
	ActionUpdate Action = "update"
	ActionReject Action = "reject"
)

// Facts are the existing credentials found for an attempt, gathered in a fixed order.
type Facts struct {
	Local bool

	// WithEmail is the local-first match on email alone.
	WithEmail *UsersProvider
	// WithLogin is only gathered for local attempts whose email is free or federated.
	WithLogin *UsersProvider
	// WithSubAndEmail and WithSub are only gathered for federated attempts.
	WithSubAndEmail *UsersProvider
	WithSub         *UsersProvider
}

// Decision is what a [Rule] resolves to.
type Decision struct {
	Rule   string
	Action Action
	// Target is the row to update for ActionUpdate and the owner source for ActionAttach.
	Target *UsersProvider
	Fields []Field
	// Verify requests a verification email after commit.
	Verify bool
}

// Rule is one line of the decision table.
type Rule struct {
	Name string
	When func(facts Facts) bool
	Then func(facts Facts) Decision
}

var (
	profileFields  = []Field{FieldName, FieldSurname, FieldPassword, FieldAvatar}
	claimFields    = []Field{FieldEmail, FieldName, FieldSurname, FieldPassword, FieldAvatar}
	identityFields = []Field{FieldEmail, FieldLogin, FieldName, FieldSurname, FieldPassword, FieldAvatar}
)

func isLocalRecord(record *UsersProvider) bool {
	return record != nil && record.ProviderName.IsLocal()
}

func confirmed(record *UsersProvider) bool {
	return record != nil && record.EmailIsValidated
}

func unconfirmed(record *UsersProvider) bool {
	return record != nil && !record.EmailIsValidated
}

// LocalRules is the decision table for password sign-ups, evaluated top to bottom.
var LocalRules = []Rule{
	{
		Name: "login_slot_unconfirmed",
		When: func(facts Facts) bool { return facts.WithEmail == nil && unconfirmed(facts.WithLogin) },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionUpdate, Target: facts.WithLogin, Fields: claimFields, Verify: true}
		},
	},
	{
		Name: "login_taken",
		When: func(facts Facts) bool { return facts.WithEmail == nil && confirmed(facts.WithLogin) },
		Then: func(Facts) Decision { return Decision{Action: ActionReject} },
	},
	{
		Name: "fresh_local",
		When: func(facts Facts) bool { return facts.WithEmail == nil },
		Then: func(Facts) Decision { return Decision{Action: ActionCreate, Verify: true} },
	},
	{
		Name: "local_email_taken",
		When: func(facts Facts) bool { return isLocalRecord(facts.WithEmail) && facts.WithEmail.EmailIsValidated },
		Then: func(Facts) Decision { return Decision{Action: ActionReject} },
	},
	{
		Name: "local_email_unconfirmed",
		When: func(facts Facts) bool { return isLocalRecord(facts.WithEmail) },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionUpdate, Target: facts.WithEmail, Fields: identityFields, Verify: true}
		},
	},
	{
		Name: "federated_email_login_taken",
		When: func(facts Facts) bool { return confirmed(facts.WithLogin) },
		Then: func(Facts) Decision { return Decision{Action: ActionReject} },
	},
	{
		Name: "federated_email_login_unconfirmed",
		When: func(facts Facts) bool { return unconfirmed(facts.WithLogin) },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionUpdate, Target: facts.WithLogin, Fields: identityFields, Verify: true}
		},
	},
	{
		Name: "attach_local_to_federated",
		When: func(Facts) bool { return true },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionAttach, Target: facts.WithEmail, Verify: true}
		},
	},
}

// ExternalRules is the decision table for federated sign-ins, evaluated top to bottom.
var ExternalRules = []Rule{
	{
		Name: "federated_relogin",
		When: func(facts Facts) bool { return facts.WithSubAndEmail != nil },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionUpdate, Target: facts.WithSubAndEmail, Fields: profileFields}
		},
	},
	{
		Name: "federated_email_changed",
		When: func(facts Facts) bool { return facts.WithSub != nil },
		Then: func(facts Facts) Decision {
			return Decision{Action: ActionUpdate, Target: facts.WithSub, Fields: identityFields}
		},
	},
	{
		Name: "attach_federated",
		When: func(facts Facts) bool { return facts.WithEmail != nil },
		Then: func(facts Facts) Decision { return Decision{Action: ActionAttach, Target: facts.WithEmail} },
	},
	{
		Name: "fresh_federated",
		When: func(Facts) bool { return true },
		Then: func(Facts) Decision { return Decision{Action: ActionCreate} },
	},
}

// Decide evaluates the table matching facts.Local and returns the first hit.
func Decide(facts Facts) Decision {
	rules := ExternalRules
	if facts.Local {
		rules = LocalRules
	}

	for _, rule := range rules {
		if rule.When(facts) {
			decision := rule.Then(facts)
			decision.Rule = rule.Name
			return decision
		}
	}

	// Both tables end with a catch-all.
	panic("identity: decision table has no catch-all rule")
}

// # Engine

// VerificationSender issues and mails an email-verification token.
type VerificationSender interface {
	SendVerification(context context.Context, providerRecordID string, email string)
}

// Outcome is the result of one reconciliation.
type Outcome struct {
	UserID           string `json:"id"`
	ProviderRecordID string `json:"providerRecordId"`
	Action           Action `json:"action"`
	Rule             string `json:"-"`
}

// Engine reconciles inbound attempts against the stored credentials.
type Engine struct {
	repository   Repository
	factory      *Factory
	verification VerificationSender
	metrics      metrics.Recorder
	logger       *slog.Logger
}

// NewEngine wires the engine dependencies.
func NewEngine(repository Repository, factory *Factory, verification VerificationSender, recorder metrics.Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		repository:   repository,
		factory:      factory,
		verification: verification,
		metrics:      recorder,
		logger:       logger,
	}
}

/*
Reconcile decides CREATE, ATTACH, UPDATE or REJECT for attempt and applies it.

Description: All lookups and the write run in one transaction, serialized per
email, login and subject. A verification email is dispatched after commit for
local outcomes.

Parameters:
  - context: context.Context
  - attempt: Attempt

Returns:
  - *Outcome: Owning user and affected credential
  - error: ErrRegistrationFailed on rejection, apperr.Conflict from the store, validation errors
*/
func (engine *Engine) Reconcile(context context.Context, attempt Attempt) (*Outcome, error) {
	var (
		outcome  *Outcome
		decision Decision
		email    string
	)

	attempt = attempt.Normalized()

	err := engine.repository.InTx(context, func(repository Repository) error {
		provider, err := repository.FindProviderByName(context, attempt.ProviderName)
		if err != nil {
			return err
		}

		if err := repository.LockKeys(context, lockKeys(attempt)...); err != nil {
			return err
		}

		// Pre-step shared by both branches.
		withEmail, err := repository.FindUsersProvider(context, Filter{Email: pointer.To(attempt.Email)})
		if err != nil {
			return err
		}

		ownerID := ""
		if withEmail != nil {
			ownerID = withEmail.UserLocalID
		}

		aggregate, err := engine.factory.Build(attempt, ownerID)
		if err != nil {
			return err
		}
		aggregate.SetProviderLocalID(provider.ID)
		email = aggregate.UsersProvider().Email

		facts, err := gatherFacts(context, repository, aggregate, withEmail)
		if err != nil {
			return err
		}

		decision = Decide(facts)
		outcome, err = apply(context, repository, aggregate, decision)
		return err
	})

	providerKind := "external"
	if attempt.ProviderName.IsLocal() {
		providerKind = "local"
	}

	if decision.Action != "" {
		engine.metrics.RecordReconciliation(providerKind, string(decision.Action))
	}
	if err != nil {
		return nil, err
	}

	engine.logger.InfoContext(context, "identity_reconciled",
		slog.String("rule", decision.Rule),
		slog.String("action", string(decision.Action)),
		slog.String("user_id", outcome.UserID),
		slog.String("provider", string(attempt.ProviderName)),
	)

	if decision.Verify {
		engine.verification.SendVerification(context, outcome.ProviderRecordID, email)
	}

	return outcome, nil
}

// Normalized returns a copy with the matching keys trimmed and the email lower-cased.
func (attempt Attempt) Normalized() Attempt {
	attempt.Email = strings.ToLower(strings.TrimSpace(attempt.Email))
	attempt.Login = strings.TrimSpace(attempt.Login)
	attempt.Sub = strings.TrimSpace(attempt.Sub)
	return attempt
}

// lockKeys lists the identity keys an attempt can collide on.
func lockKeys(attempt Attempt) []string {
	keys := []string{"email:" + attempt.Email}
	if attempt.ProviderName.IsLocal() {
		return append(keys, "login:"+attempt.Login)
	}
	return append(keys, "sub:"+string(attempt.ProviderName)+":"+attempt.Sub)
}

// gatherFacts runs the branch lookups in their fixed order.
func gatherFacts(context context.Context, repository Repository, aggregate *Aggregate, withEmail *UsersProvider) (Facts, error) {
	record := aggregate.UsersProvider()
	facts := Facts{Local: aggregate.IsLocalProvider(), WithEmail: withEmail}

	var err error

	if facts.Local {
		if withEmail == nil || !withEmail.ProviderName.IsLocal() {
			facts.WithLogin, err = repository.FindUsersProvider(context, Filter{Login: pointer.To(record.Login)})
		}
		return facts, err
	}

	facts.WithSubAndEmail, err = repository.FindUsersProvider(context, Filter{
		Sub:             pointer.To(record.Sub),
		Email:           pointer.To(record.Email),
		ProviderLocalID: pointer.To(record.ProviderLocalID),
	})
	if err != nil || facts.WithSubAndEmail != nil {
		return facts, err
	}

	facts.WithSub, err = repository.FindUsersProvider(context, Filter{
		Sub:             pointer.To(record.Sub),
		ProviderLocalID: pointer.To(record.ProviderLocalID),
	})
	return facts, err
}

// apply executes a decision against the transaction-bound repository.
func apply(context context.Context, repository Repository, aggregate *Aggregate, decision Decision) (*Outcome, error) {
	record := aggregate.UsersProvider()
	outcome := &Outcome{Action: decision.Action, Rule: decision.Rule}

	switch decision.Action {
	case ActionReject:
		return nil, ErrRegistrationFailed

	case ActionUpdate:
		if err := repository.UpdateUsersProvider(context, decision.Target.ID, record, decision.Fields...); err != nil {
			return nil, err
		}
		outcome.UserID = decision.Target.UserLocalID
		outcome.ProviderRecordID = decision.Target.ID
		return outcome, nil

	case ActionAttach:
		// An ownerless email match carries nothing to attach to.
		if decision.Target.UserLocalID == "" {
			outcome.Action = ActionCreate
			break
		}
		if err := repository.CreateUsersProvider(context, decision.Target.UserLocalID, record); err != nil {
			return nil, err
		}
		outcome.UserID = decision.Target.UserLocalID
		outcome.ProviderRecordID = record.ID
		return outcome, nil

	case ActionCreate:
	default:
		return nil, fmt.Errorf("identity_engine_unknown_action: %s", decision.Action)
	}

	if err := repository.CreateUser(context, aggregate); err != nil {
		return nil, err
	}
	outcome.UserID = aggregate.User().ID
	outcome.ProviderRecordID = record.ID
	return outcome, nil
}
