package config

import (
	"github.com/haasonsaas/turnctl/internal/agent"
	"github.com/haasonsaas/turnctl/internal/agent/routing"
	"github.com/haasonsaas/turnctl/internal/ratelimit"
)

// ToExecutorConfig translates the tools.execution YAML section into the
// Tool Executor Adapter's runtime config, so a composition root only has
// to decode one YAML document instead of hand-building an
// agent.ExecutorConfig with matching field-by-field defaults.
func (c *ToolExecutionConfig) ToExecutorConfig() *agent.ExecutorConfig {
	cfg := agent.DefaultExecutorConfig()
	if c == nil {
		return cfg
	}
	if c.Parallelism > 0 {
		cfg.MaxConcurrency = c.Parallelism
	}
	if c.Timeout > 0 {
		cfg.DefaultTimeout = c.Timeout
	}
	if c.MaxAttempts > 0 {
		cfg.DefaultRetries = c.MaxAttempts
	}
	if c.RetryBackoff > 0 {
		cfg.RetryBackoff = c.RetryBackoff
	}
	return cfg
}

// ToApprovalPolicy translates the tools.execution.approval YAML section
// into the Tool Registry & Gate's ApprovalPolicy. Empty list fields fall
// through to agent.DefaultApprovalPolicy's values rather than clearing
// them, so an operator can override just the default_decision or profile
// without having to re-list every safe binary.
func (c *ApprovalConfig) ToApprovalPolicy() *agent.ApprovalPolicy {
	policy := agent.DefaultApprovalPolicy()
	if c == nil {
		return policy
	}
	if len(c.Allowlist) > 0 {
		policy.Allowlist = append([]string(nil), c.Allowlist...)
	}
	if len(c.Denylist) > 0 {
		policy.Denylist = append([]string(nil), c.Denylist...)
	}
	if len(c.SafeBins) > 0 {
		policy.SafeBins = append([]string(nil), c.SafeBins...)
	}
	if c.SkillAllowlist != nil {
		policy.SkillAllowlist = *c.SkillAllowlist
	}
	if c.AskFallback != nil {
		policy.AskFallback = *c.AskFallback
	}
	if c.DefaultDecision != "" {
		policy.DefaultDecision = agent.ApprovalDecision(c.DefaultDecision)
	}
	if c.RequestTTL > 0 {
		policy.RequestTTL = c.RequestTTL
	}
	return policy
}

// ToLimiter translates tools.execution.rate_limit into an
// internal/ratelimit.Limiter suitable for Executor.SetRateLimiter. Returns
// nil when rate limiting is disabled, so callers can pass the result
// straight through without an extra nil-config check.
func (c *ToolExecutionConfig) ToLimiter() *ratelimit.Limiter {
	if c == nil || !c.RateLimit.Enabled {
		return nil
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		BurstSize:         c.RateLimit.BurstSize,
	})
}

// ToRouterConfig translates llm.default_provider and llm.routing into the
// routing.Config a routing.Router is built from. The returned Config has
// no Classifier set, so NewRouter falls back to its own
// HeuristicClassifier unless the caller overrides it afterward.
func (c *LLMConfig) ToRouterConfig() routing.Config {
	if c == nil {
		return routing.Config{}
	}

	rules := make([]routing.Rule, 0, len(c.Routing.Rules))
	for _, r := range c.Routing.Rules {
		rules = append(rules, routing.Rule{
			Name: r.Name,
			Match: routing.Match{
				Patterns: append([]string(nil), r.Match.Patterns...),
				Tags:     append([]string(nil), r.Match.Tags...),
			},
			Target: routing.Target{
				Provider: r.Target.Provider,
				Model:    r.Target.Model,
			},
		})
	}

	return routing.Config{
		DefaultProvider: c.DefaultProvider,
		PreferLocal:     c.Routing.PreferLocal,
		Rules:           rules,
		Fallback: routing.Target{
			Provider: c.Routing.Fallback.Provider,
			Model:    c.Routing.Fallback.Model,
		},
		FailureCooldown: c.Routing.UnhealthyCooldown,
	}
}
