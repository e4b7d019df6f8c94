package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

const ToolMathEvaluate = "math_evaluate"

// Digits, whitespace, decimal points, + - * / and parentheses.
var (
	mathExpressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/\(\)\.]+$`)
	mathNumberPattern     = regexp.MustCompile(`\d+(\.\d*)?|\.\d+`)
)

type MathEvaluateInput struct {
	Expression string `json:"expression"`
}

type MathEvaluateOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// mathEvaluator evaluates arithmetic with CEL. Every literal is widened to a
// double so that 7 / 2 is 3.5 rather than integer division.
type mathEvaluator struct {
	env *cel.Env
}

func newMathEvaluator() (*mathEvaluator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("math: create CEL environment: %w", err)
	}
	return &mathEvaluator{env: env}, nil
}

func (m *mathEvaluator) Evaluate(_ context.Context, in MathEvaluateInput) (MathEvaluateOutput, error) {
	expression := strings.TrimSpace(in.Expression)
	if err := validateMathExpression(expression); err != nil {
		return MathEvaluateOutput{}, invalidArgs("%v", err)
	}

	widened := mathNumberPattern.ReplaceAllStringFunc(expression, widenLiteral)
	ast, issues := m.env.Compile(widened)
	if issues != nil && issues.Err() != nil {
		return MathEvaluateOutput{}, invalidArgs("expression does not parse: %v", issues.Err())
	}
	prg, err := m.env.Program(ast, cel.CostLimit(1000))
	if err != nil {
		return MathEvaluateOutput{}, invalidArgs("expression cannot be evaluated: %v", err)
	}
	out, _, err := prg.Eval(cel.NoVars())
	if err != nil {
		return MathEvaluateOutput{}, invalidArgs("expression cannot be evaluated: %v", err)
	}
	value, ok := out.Value().(float64)
	if !ok {
		return MathEvaluateOutput{}, invalidArgs("expression is not numeric")
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return MathEvaluateOutput{}, invalidArgs("division by zero")
	}

	// Drop float noise such as 0.1 + 0.2.
	rounded, _ := decimal.NewFromFloat(value).Round(10).Float64()
	return MathEvaluateOutput{Expression: expression, Result: rounded}, nil
}

// widenLiteral turns 7 into 7.0, .5 into 0.5 and 5. into 5.0.
func widenLiteral(n string) string {
	switch {
	case strings.HasPrefix(n, "."):
		return "0" + n
	case strings.HasSuffix(n, "."):
		return n + "0"
	case !strings.Contains(n, "."):
		return n + ".0"
	}
	return n
}

func validateMathExpression(expression string) error {
	if expression == "" {
		return errors.New("expression is empty")
	}
	if !mathExpressionPattern.MatchString(expression) {
		return errors.New("expression contains invalid characters")
	}
	balance := 0
	for _, ch := range expression {
		switch ch {
		case '(':
			balance++
		case ')':
			balance--
			if balance < 0 {
				return errors.New("unbalanced parentheses")
			}
		}
	}
	if balance != 0 {
		return errors.New("unbalanced parentheses")
	}
	return nil
}
