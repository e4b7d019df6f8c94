package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Operations guarded by the rule set.
const (
	OpRefund        = "refund"
	OpOrderCreate   = "order.create"
	OpOrderCancel   = "order.cancel"
	OpWarrantyClaim = "warranty_claim"
)

const (
	HighValueRefundCents  = 250000
	ReturnWindowDays      = 30
	HighVolumeTicketCount = 4
	HighVolumeWindow      = 30 * 24 * time.Hour
)

//go:embed rules.yaml
var defaultRules []byte

var ErrDenied = errors.New("policy denied")

type Rule struct {
	ID      string `yaml:"id" json:"id"`
	Op      string `yaml:"op" json:"op"`
	Expr    string `yaml:"expr" json:"expr"`
	Message string `yaml:"message" json:"message"`
}

type Denial struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// PolicyError lists every rule an operation violated.
type PolicyError struct {
	Op      string
	Denials []Denial
}

func (e *PolicyError) Error() string {
	parts := make([]string, len(e.Denials))
	for i, d := range e.Denials {
		parts[i] = fmt.Sprintf("%s: %s", d.Rule, d.Message)
	}
	return fmt.Sprintf("policy denied %s: %s", e.Op, strings.Join(parts, "; "))
}

func (e *PolicyError) Unwrap() error { return ErrDenied }

// RuleIDs returns the ids of the violated rules.
func (e *PolicyError) RuleIDs() []string {
	ids := make([]string, len(e.Denials))
	for i, d := range e.Denials {
		ids[i] = d.Rule
	}
	return ids
}

// Facts is the input of a rule set, exposed to CEL as the map variable f.
type Facts map[string]any

type compiled struct {
	rule Rule
	prg  cel.Program
}

// Engine evaluates CEL rules grouped by operation. Programs are compiled once on load.
type Engine struct {
	mu     sync.RWMutex
	env    *cel.Env
	byOp   map[string][]compiled
	onDeny func(op string, d Denial)
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("f", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func New(rules []Rule) (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	e := &Engine{env: env}
	if err := e.Replace(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Default builds the engine from the embedded CoreCraft rule set.
func Default() (*Engine, error) {
	rules, err := ParseRules(bytes.NewReader(defaultRules))
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// Load reads rules from path, or the embedded set when path is empty.
func Load(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rules, err := ParseRules(f)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

func MustDefault() *Engine {
	e, err := Default()
	if err != nil {
		panic(err)
	}
	return e
}

func ParseRules(r io.Reader) ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return doc.Rules, nil
}

// Replace compiles rules and swaps them in atomically. Nothing changes on error.
func (e *Engine) Replace(rules []Rule) error {
	byOp := make(map[string][]compiled)
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" || r.Op == "" || strings.TrimSpace(r.Expr) == "" {
			return fmt.Errorf("rule %q: id, op and expr are required", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true

		ast, issues := e.env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %q: compile: %w", r.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
			return fmt.Errorf("rule %q: expression must be boolean, got %s", r.ID, ast.OutputType())
		}
		prg, err := e.env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return fmt.Errorf("rule %q: program: %w", r.ID, err)
		}
		byOp[r.Op] = append(byOp[r.Op], compiled{rule: r, prg: prg})
	}

	e.mu.Lock()
	e.byOp = byOp
	e.mu.Unlock()
	return nil
}

// OnDeny registers a hook called for every denial, used for metrics.
func (e *Engine) OnDeny(fn func(op string, d Denial)) {
	e.mu.Lock()
	e.onDeny = fn
	e.mu.Unlock()
}

// Rules lists the loaded rules sorted by id.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Rule
	for _, list := range e.byOp {
		for _, c := range list {
			out = append(out, c.rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Check evaluates every rule registered for op. A rule that fails to evaluate denies.
func (e *Engine) Check(op string, facts Facts) []Denial {
	e.mu.RLock()
	list := e.byOp[op]
	hook := e.onDeny
	e.mu.RUnlock()

	input := map[string]any{"f": map[string]any(facts)}
	var denials []Denial
	for _, c := range list {
		out, _, err := c.prg.Eval(input)
		if err != nil {
			log.Warn().Err(err).Str("rule", c.rule.ID).Msg("policy: evaluation failed")
			denials = append(denials, Denial{Rule: c.rule.ID, Message: fmt.Sprintf("rule could not be evaluated: %v", err)})
			continue
		}
		if allowed, ok := out.Value().(bool); !ok || !allowed {
			denials = append(denials, Denial{Rule: c.rule.ID, Message: strings.TrimSpace(c.rule.Message)})
		}
	}
	for _, d := range denials {
		log.Info().Str("op", op).Str("rule", d.Rule).Msg("policy: denied")
		if hook != nil {
			hook(op, d)
		}
	}
	return denials
}

// Enforce returns a *PolicyError when any rule for op is violated.
func (e *Engine) Enforce(op string, facts Facts) error {
	if denials := e.Check(op, facts); len(denials) > 0 {
		return &PolicyError{Op: op, Denials: denials}
	}
	return nil
}
