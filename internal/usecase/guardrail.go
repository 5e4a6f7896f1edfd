package usecase

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// Default guardrail expressions per intent mode
const (
	DefaultQualityGuardrail  = "similarity >= 0.6"
	DefaultEconomyGuardrail  = "price_ratio <= 0.85"
	DefaultBalancedGuardrail = "similarity >= 0.45 && price_ratio <= 0.95"
)

// GuardrailConfig holds the CEL expression applied to candidates per mode.
// Expressions see the candidate fields both as top-level variables and
// under "candidate", e.g. "candidate.similarity >= 0.6".
type GuardrailConfig struct {
	Quality  string
	Economy  string
	Balanced string
}

// Guardrails filters candidates with a compiled CEL program per intent mode
type Guardrails struct {
	programs map[domain.IntentMode]cel.Program
	exprs    map[domain.IntentMode]string
}

// guardrailVariables are the candidate fields exposed to expressions
var guardrailVariables = map[string]*cel.Type{
	"similarity":  cel.DoubleType,
	"price_ratio": cel.DoubleType,
	"saving":      cel.DoubleType,
	"saving_pct":  cel.DoubleType,
	"size_ratio":  cel.DoubleType,
	"cf_score":    cel.DoubleType,
	"blend_score": cel.DoubleType,
	"health_gain": cel.BoolType,
	"same_brand":  cel.BoolType,
	"match_level": cel.StringType,
}

// NewGuardrails compiles the configured expressions. Empty expressions use
// the defaults; a compile error is returned rather than silently ignored.
func NewGuardrails(config GuardrailConfig) (*Guardrails, error) {
	if config.Quality == "" {
		config.Quality = DefaultQualityGuardrail
	}
	if config.Economy == "" {
		config.Economy = DefaultEconomyGuardrail
	}
	if config.Balanced == "" {
		config.Balanced = DefaultBalancedGuardrail
	}

	opts := []cel.EnvOption{
		cel.Variable("candidate", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	}
	for name, typ := range guardrailVariables {
		opts = append(opts, cel.Variable(name, typ))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating guardrail environment: %w", err)
	}

	g := &Guardrails{
		programs: make(map[domain.IntentMode]cel.Program, 3),
		exprs: map[domain.IntentMode]string{
			domain.ModeQuality:  config.Quality,
			domain.ModeEconomy:  config.Economy,
			domain.ModeBalanced: config.Balanced,
		},
	}

	for mode, expr := range g.exprs {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compiling %s guardrail %q: %w", mode, expr, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("%s guardrail %q must return bool, got %s", mode, expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("building %s guardrail program: %w", mode, err)
		}
		g.programs[mode] = prg
	}

	return g, nil
}

// Expression returns the expression used for a mode
func (g *Guardrails) Expression(mode domain.IntentMode) string {
	return g.exprs[mode]
}

// Allow evaluates the mode's guardrail for one candidate
func (g *Guardrails) Allow(mode domain.IntentMode, c *domain.Candidate) (bool, error) {
	prg, ok := g.programs[mode]
	if !ok {
		prg = g.programs[domain.ModeBalanced]
	}

	vars := guardrailInput(c)
	input := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		input[k] = v
	}
	input["candidate"] = vars

	out, _, err := prg.Eval(input)
	if err != nil {
		return true, err
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return true, fmt.Errorf("guardrail returned %T, want bool", out.Value())
	}
	return allowed, nil
}

// Filter keeps candidates passing the mode's guardrail. If nothing passes,
// the input is returned unchanged and bypassed is true. A candidate whose
// guardrail fails to evaluate is kept.
func (g *Guardrails) Filter(mode domain.IntentMode, candidates []domain.Candidate) (kept []domain.Candidate, bypassed bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	kept = make([]domain.Candidate, 0, len(candidates))
	for i := range candidates {
		allowed, err := g.Allow(mode, &candidates[i])
		if err != nil {
			logging.Warn().Err(err).Str("mode", string(mode)).Int64("product_id", candidates[i].Replacement.ID).
				Msg("[GUARDRAIL] evaluation failed, keeping candidate")
		}
		if allowed {
			kept = append(kept, candidates[i])
		}
	}

	if len(kept) == 0 {
		metrics.GuardrailBypassed.WithLabelValues(string(mode)).Inc()
		logging.Debug().Str("mode", string(mode)).Int("candidates", len(candidates)).
			Msg("[GUARDRAIL] filter removed every candidate, using unfiltered set")
		return candidates, true
	}
	return kept, false
}

func guardrailInput(c *domain.Candidate) map[string]any {
	return map[string]any{
		"similarity":  c.Similarity,
		"price_ratio": c.PriceRatio(),
		"saving":      c.Saving,
		"saving_pct":  c.SavingPct,
		"size_ratio":  c.SizeRatio,
		"cf_score":    c.CFScore,
		"blend_score": c.BlendScore,
		"health_gain": c.HealthGain,
		"same_brand":  c.HasReason(domain.ReasonSameBrand),
		"match_level": string(c.MatchLevel),
	}
}
