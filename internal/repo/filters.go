package repo

import (
	"regexp"
)

// BranchFilterConfig is the serializable, user-facing shape of a branch
// filter: either every branch, just HEAD, or an explicit selection.
type BranchFilterConfigKind int

const (
	BranchAll BranchFilterConfigKind = iota
	BranchHead
	BranchSelect
)

type BranchFilterConfig struct {
	Kind   BranchFilterConfigKind
	Select []string // only meaningful when Kind == BranchSelect
}

// PatchInto merges an update into the receiver: a Select update unions
// its patterns with the existing Select set (if any), anything else
// overrides outright.
func (c BranchFilterConfig) PatchInto(update BranchFilterConfig) BranchFilterConfig {
	if update.Kind != BranchSelect {
		return update
	}
	if c.Kind != BranchSelect {
		return update
	}
	seen := make(map[string]struct{}, len(c.Select)+len(update.Select))
	merged := make([]string, 0, len(c.Select)+len(update.Select))
	for _, p := range append(append([]string{}, c.Select...), update.Select...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	return BranchFilterConfig{Kind: BranchSelect, Select: merged}
}

// BranchFilter is the compiled form of BranchFilterConfig used at
// git-walk time. A Select filter always also matches "HEAD": a branch
// selection that somehow omitted the current head would silently stop
// indexing the one ref most searches care about.
type BranchFilter struct {
	Kind    BranchFilterConfigKind
	pattern *regexp.Regexp // only set when Kind == BranchSelect
}

func CompileBranchFilter(cfg BranchFilterConfig) (BranchFilter, error) {
	switch cfg.Kind {
	case BranchAll, BranchHead:
		return BranchFilter{Kind: cfg.Kind}, nil
	case BranchSelect:
		patterns := append(append([]string{}, cfg.Select...), "^HEAD$")
		combined := ""
		for i, p := range patterns {
			if i > 0 {
				combined += "|"
			}
			combined += "(?:" + p + ")"
		}
		re, err := regexp.Compile(combined)
		if err != nil {
			return BranchFilter{}, err
		}
		return BranchFilter{Kind: BranchSelect, pattern: re}, nil
	default:
		return BranchFilter{Kind: BranchAll}, nil
	}
}

// Filter reports whether a given ref should be walked.
func (f BranchFilter) Filter(isHead bool, branch string) bool {
	switch f.Kind {
	case BranchAll:
		return true
	case BranchHead:
		return isHead
	case BranchSelect:
		return isHead || f.pattern.MatchString(branch)
	default:
		return false
	}
}

// FileFilterRuleKind distinguishes include from exclude, and literal
// path from regex pattern.
type FileFilterRuleKind int

const (
	IncludeFile FileFilterRuleKind = iota
	IncludeRegex
	ExcludeFile
	ExcludeRegex
)

type FileFilterRule struct {
	Kind    FileFilterRuleKind
	Pattern string
}

type FileFilterConfig struct {
	Rules []FileFilterRule
}

// PatchInto merges an update's rules into the receiver's. An include
// rule for a target cancels a matching exclude rule for the same
// target and vice versa, since the most recently expressed intent
// about one path should win outright rather than stack.
func (c FileFilterConfig) PatchInto(update FileFilterConfig) FileFilterConfig {
	merged := append([]FileFilterRule{}, c.Rules...)
	for _, rule := range update.Rules {
		opposite := oppositeKind(rule.Kind)
		filtered := merged[:0]
		for _, existing := range merged {
			if existing.Kind == opposite && existing.Pattern == rule.Pattern {
				continue
			}
			filtered = append(filtered, existing)
		}
		merged = append(filtered, rule)
	}
	return FileFilterConfig{Rules: merged}
}

func oppositeKind(k FileFilterRuleKind) FileFilterRuleKind {
	switch k {
	case IncludeFile:
		return ExcludeFile
	case ExcludeFile:
		return IncludeFile
	case IncludeRegex:
		return ExcludeRegex
	case ExcludeRegex:
		return IncludeRegex
	default:
		return k
	}
}

// FileFilter is the compiled form used during a walk.
type FileFilter struct {
	excludeList     map[string]struct{}
	includeList     map[string]struct{}
	excludePatterns []*regexp.Regexp
	includePatterns []*regexp.Regexp
}

func CompileFileFilter(cfg FileFilterConfig) (FileFilter, error) {
	f := FileFilter{
		excludeList: make(map[string]struct{}),
		includeList: make(map[string]struct{}),
	}
	for _, rule := range cfg.Rules {
		switch rule.Kind {
		case IncludeFile:
			f.includeList[rule.Pattern] = struct{}{}
		case ExcludeFile:
			f.excludeList[rule.Pattern] = struct{}{}
		case IncludeRegex:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return FileFilter{}, err
			}
			f.includePatterns = append(f.includePatterns, re)
		case ExcludeRegex:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return FileFilter{}, err
			}
			f.excludePatterns = append(f.excludePatterns, re)
		}
	}
	return f, nil
}

// IsAllowed returns (allowed, explicit). explicit is false when no
// rule mentioned the path at all, letting a caller fall back to a
// default policy instead of treating silence as rejection.
func (f FileFilter) IsAllowed(path string) (allowed bool, explicit bool) {
	if _, ok := f.includeList[path]; ok {
		return true, true
	}
	for _, re := range f.includePatterns {
		if re.MatchString(path) {
			return true, true
		}
	}
	if _, ok := f.excludeList[path]; ok {
		return false, true
	}
	for _, re := range f.excludePatterns {
		if re.MatchString(path) {
			return false, true
		}
	}
	return false, false
}
