package config

// ResolveAdapterType decides which storage adapter an invocation targets.
// An explicit, non-auto adapter_type always wins. Otherwise: a database
// connection string implies the document-store adapter, a bucket name
// implies the object-store adapter, and the fallback is the filesystem.
func (c *Config) ResolveAdapterType() AdapterType {
	if c.Storage.AdapterType != "" && c.Storage.AdapterType != AdapterAuto {
		return c.Storage.AdapterType
	}

	switch {
	case c.Storage.Database.Connection != "":
		return AdapterDatabase
	case c.Storage.S3.BucketName != "":
		return AdapterS3
	default:
		return AdapterFilesystem
	}
}

// StepContext is the minimal view of a sample's context the resolver
// needs: the suite it belongs to, its tags in the order given, and the
// literal step text. It mirrors internal/model.StepContext without
// importing it, keeping config free of a dependency on model.
type StepContext struct {
	Suite string
	Tags  []string
}

// ResolveStepType selects the base step type for a historical average
// duration by checking step_types from fastest to slowest against each
// bucket's max_duration; the slow bucket (max_duration == 0, meaning
// unbounded) is always the fallback.
func (c *Config) ResolveStepType(average float64) StepType {
	order := []StepType{StepTypeVeryFast, StepTypeFast, StepTypeMedium}

	for _, st := range order {
		bucket, ok := c.Analysis.StepTypes[st]
		if !ok {
			continue
		}

		if bucket.MaxDuration > 0 && average <= bucket.MaxDuration {
			return st
		}
	}

	return StepTypeSlow
}

// EffectiveStepConfig resolves the layered configuration for one step
// under a context, in precedence order (later layers win):
//  1. the base step type selected by average against step_types.*.max_duration
//  2. the suite override for ctx.Suite
//  3. each tag override in ctx.Tags, in the order given
//  4. the step-specific override keyed by stepText
//
// It is pure: the same inputs always produce the same result.
func (c *Config) EffectiveStepConfig(stepText string, average float64, ctx StepContext) EffectiveStepConfig {
	stepType := c.ResolveStepType(average)

	eff := EffectiveStepConfig{
		StepType:  stepType,
		Threshold: c.Analysis.Threshold,
		Rules:     mergeRules(c.Analysis.GlobalRules, c.Analysis.StepTypes[stepType].Rules),
	}

	if suiteOverride, ok := c.Analysis.SuiteOverrides[ctx.Suite]; ok {
		eff = applyOverride(eff, suiteOverride)
	}

	for _, tag := range ctx.Tags {
		if tagOverride, ok := c.Analysis.TagOverrides[tag]; ok {
			eff = applyOverride(eff, tagOverride)
		}
	}

	if stepOverride, ok := c.Analysis.StepOverrides[stepText]; ok {
		eff = applyOverride(eff, stepOverride)
	}

	return eff
}

// mergeRules layers stepType rules over the global baseline: any
// zero-valued field in stepType falls back to the corresponding global
// value.
func mergeRules(base, overlay Rules) Rules {
	result := base

	if overlay.MinPercentageChange != 0 {
		result.MinPercentageChange = overlay.MinPercentageChange
	}

	if overlay.MinAbsoluteSlowdown != 0 {
		result.MinAbsoluteSlowdown = overlay.MinAbsoluteSlowdown
	}

	result.CheckTrends = overlay.CheckTrends || base.CheckTrends

	if overlay.TrendSensitivity != 0 {
		result.TrendSensitivity = overlay.TrendSensitivity
	}

	result.FilterStableSteps = overlay.FilterStableSteps || base.FilterStableSteps

	if overlay.StableThreshold != 0 {
		result.StableThreshold = overlay.StableThreshold
	}

	if overlay.StableMinSlowdown != 0 {
		result.StableMinSlowdown = overlay.StableMinSlowdown
	}

	return result
}

// applyOverride layers a partial Override onto an already-resolved
// EffectiveStepConfig, replacing only the fields the override sets.
func applyOverride(eff EffectiveStepConfig, o Override) EffectiveStepConfig {
	if o.StepType != "" {
		eff.StepType = o.StepType
	}

	if o.Threshold != 0 {
		eff.Threshold = o.Threshold
	}

	eff.Rules = mergeRules(eff.Rules, o.Rules)

	return eff
}
