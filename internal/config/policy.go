package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Operations guarded by document requirements.
const (
	OperationCreate          = "create"
	OperationIssue           = "issue"
	OperationSend            = "send"
	OperationSubmitFactoring = "submit_factoring"
)

// BaselineDocument is required by every guarded operation whatever the policy file says.
const BaselineDocument = "POD"

// GuardedOperations lists the operations the document gate enforces.
var GuardedOperations = []string{
	OperationCreate,
	OperationIssue,
	OperationSend,
	OperationSubmitFactoring,
}

// BillingPolicy is the hot-reloadable part of the configuration.
type BillingPolicy struct {
	RequiredDocuments    map[string][]string `mapstructure:"requiredDocuments"`
	TerminalLoadStatuses []string            `mapstructure:"terminalLoadStatuses"`
	DefaultPaymentTerms  string              `mapstructure:"defaultPaymentTerms"`
	Factoring            FactoringPolicy     `mapstructure:"factoring"`
}

// FactoringPolicy tunes the reference factoring provider.
type FactoringPolicy struct {
	// ApprovalThreshold is the largest invoice total, in minor units, the reference provider accepts.
	ApprovalThreshold int64 `mapstructure:"approvalThreshold"`
	// AdvanceRateBps is the advance paid on acceptance, in basis points.
	AdvanceRateBps int64 `mapstructure:"advanceRateBps"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		RequiredDocuments: map[string][]string{
			OperationCreate:          {"POD"},
			OperationIssue:           {"POD"},
			OperationSend:            {"POD"},
			OperationSubmitFactoring: {"POD"},
		},
		TerminalLoadStatuses: []string{"DELIVERED", "COMPLETED"},
		DefaultPaymentTerms:  "NET30",
		Factoring: FactoringPolicy{
			ApprovalThreshold: 1_000_000,
			AdvanceRateBps:    9000,
		},
	}
}

// RequiredFor returns the document kinds the operation needs.
func (p BillingPolicy) RequiredFor(operation string) []string {
	return p.RequiredDocuments[operation]
}

// IsTerminalLoadStatus reports whether a load in status has finished delivery.
func (p BillingPolicy) IsTerminalLoadStatus(status string) bool {
	status = strings.ToUpper(strings.TrimSpace(status))
	for _, s := range p.TerminalLoadStatuses {
		if strings.ToUpper(s) == status {
			return true
		}
	}
	return false
}

type PolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p BillingPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/freightpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FREIGHTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy := DefaultBillingPolicy()
	if fileFound {
		if err := v.UnmarshalKey("billing", &policy); err != nil {
			return nil, err
		}
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileFound {
		log.Info("billing policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultBillingPolicy()
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid billing policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

func validatePolicy(p BillingPolicy) error {
	for _, op := range GuardedOperations {
		if !containsKind(p.RequiredFor(op), BaselineDocument) {
			return fmt.Errorf("billing.requiredDocuments.%s must include %s", op, BaselineDocument)
		}
	}
	if len(p.TerminalLoadStatuses) == 0 {
		return errors.New("billing.terminalLoadStatuses cannot be empty")
	}
	if p.Factoring.ApprovalThreshold <= 0 {
		return errors.New("billing.factoring.approvalThreshold must be positive")
	}
	if p.Factoring.AdvanceRateBps <= 0 || p.Factoring.AdvanceRateBps > 10000 {
		return fmt.Errorf("billing.factoring.advanceRateBps out of range: %d", p.Factoring.AdvanceRateBps)
	}
	return nil
}

func containsKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if strings.EqualFold(strings.TrimSpace(k), want) {
			return true
		}
	}
	return false
}
