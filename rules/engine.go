package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine holds rule sets which map an enumerated node, endpoint by endpoint,
// to the capability implementations that should be attached to its devices.
type Engine struct {
	RuleSets map[string]RuleSet
	Rules    []CompiledRule
}

func New() *Engine {
	return &Engine{
		RuleSets: map[string]RuleSet{},
	}
}

// CapabilityValues maps a capability parameter name to an expression which
// is evaluated against the Input when the owning rule matches.
type CapabilityValues map[string]string

type CompiledCapabilityValues map[string]*vm.Program

type Capabilities struct {
	Add    map[string]CapabilityValues
	Remove map[string]CapabilityValues
}

type Actions struct {
	Capabilities Capabilities
}

type Rule struct {
	Description string
	Filter      string
	Actions     Actions
	Children    []Rule
}

type CompiledCapabilities struct {
	Add    map[string]CompiledCapabilityValues
	Remove map[string]CompiledCapabilityValues
}

type CompiledActions struct {
	Capabilities CompiledCapabilities
}

type CompiledRule struct {
	Description string
	Filter      *vm.Program
	Actions     CompiledActions
	Children    []CompiledRule
}

type RuleSet struct {
	Name      string
	DependsOn []string
	Rules     []Rule
}

type InputProductData struct {
	Name         string
	Manufacturer string
}

type InputNode struct {
	ManufacturerCode uint16
	Type             string
}

type InputEndpoint struct {
	ID          int
	ProfileID   uint16
	DeviceID    uint16
	InClusters  []uint16
	OutClusters []uint16
}

type Input struct {
	Node     InputNode
	Self     int
	Product  map[int]InputProductData
	Endpoint map[int]InputEndpoint
}

// Output is the aggregate result of executing all matching rules against a
// single endpoint, capability implementation names with their evaluated
// parameter values.
type Output struct {
	Capabilities map[string]map[string]any
}

func (e *Engine) LoadString(s string) error {
	return e.LoadReader(strings.NewReader(s))
}

func (e *Engine) LoadReader(r io.Reader) error {
	var rs RuleSet

	if err := json.NewDecoder(r).Decode(&rs); err != nil {
		return fmt.Errorf("ruleset decode: %w", err)
	}

	if rs.Name == "" {
		return fmt.Errorf("ruleset decode: ruleset has no name")
	}

	e.RuleSets[rs.Name] = rs
	return nil
}

func (e *Engine) LoadFS(f fs.FS) error {
	return fs.WalkDir(f, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		file, err := f.Open(path)
		if err != nil {
			return fmt.Errorf("ruleset open: %s: %w", path, err)
		}
		defer file.Close()

		if err := e.LoadReader(file); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		return nil
	})
}

func (e *Engine) CompileRules() error {
	alreadyLoaded := map[string]bool{}

	for k := range e.RuleSets {
		alreadyLoaded[k] = false
	}

	for k := range e.RuleSets {
		if !alreadyLoaded[k] {
			if err := e.compileRuleSet(alreadyLoaded, []string{}, k); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) compileRuleSet(alreadyLoaded map[string]bool, trail []string, name string) error {
	rs, ok := e.RuleSets[name]
	if !ok {
		return fmt.Errorf("ruleset missing dependency: %s->%s", strings.Join(trail, "->"), name)
	}

	trail = append(trail, rs.Name)

	for _, k := range rs.DependsOn {
		for _, t := range trail {
			if k == t {
				return fmt.Errorf("ruleset circular dependency: %s->%s", strings.Join(trail, "->"), k)
			}
		}

		if !alreadyLoaded[k] {
			if err := e.compileRuleSet(alreadyLoaded, trail, k); err != nil {
				return err
			}
		}
	}

	if cr, err := compileRules(rs.Rules); err != nil {
		return fmt.Errorf("ruleset compilation: %s: %w", strings.Join(trail, "->"), err)
	} else {
		e.Rules = append(e.Rules, cr...)
	}

	alreadyLoaded[name] = true

	return nil
}

func compileRules(rules []Rule) ([]CompiledRule, error) {
	var compiledRules []CompiledRule

	for _, rule := range rules {
		cf, err := expr.Compile(rule.Filter, expr.Env(Input{}))
		if err != nil {
			return nil, fmt.Errorf("filter compilation: %w", err)
		}

		ca, err := compileActions(rule.Actions)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rule.Description, err)
		}

		if childCompiledRules, err := compileRules(rule.Children); err != nil {
			return nil, fmt.Errorf("%s: %w", rule.Description, err)
		} else {
			compiledRules = append(compiledRules, CompiledRule{
				Description: rule.Description,
				Filter:      cf,
				Actions:     ca,
				Children:    childCompiledRules,
			})
		}
	}

	return compiledRules, nil
}

func compileActions(a Actions) (CompiledActions, error) {
	ca := CompiledActions{
		Capabilities: CompiledCapabilities{
			Add:    map[string]CompiledCapabilityValues{},
			Remove: map[string]CompiledCapabilityValues{},
		},
	}

	for capName, values := range a.Capabilities.Add {
		cv, err := compileCapabilityValues(values)
		if err != nil {
			return ca, fmt.Errorf("add capability %s: %w", capName, err)
		}

		ca.Capabilities.Add[capName] = cv
	}

	for capName, values := range a.Capabilities.Remove {
		cv, err := compileCapabilityValues(values)
		if err != nil {
			return ca, fmt.Errorf("remove capability %s: %w", capName, err)
		}

		ca.Capabilities.Remove[capName] = cv
	}

	return ca, nil
}

func compileCapabilityValues(values CapabilityValues) (CompiledCapabilityValues, error) {
	cv := CompiledCapabilityValues{}

	for k, v := range values {
		p, err := expr.Compile(v, expr.Env(Input{}))
		if err != nil {
			return nil, fmt.Errorf("value %s compilation: %w", k, err)
		}

		cv[k] = p
	}

	return cv, nil
}

// Execute runs all compiled rules against the input, depth first, child
// rules only being considered when their parent matched.
func (e *Engine) Execute(i Input) (Output, error) {
	o := Output{
		Capabilities: map[string]map[string]any{},
	}

	if err := executeRules(e.Rules, i, &o); err != nil {
		return o, err
	}

	return o, nil
}

func executeRules(rules []CompiledRule, i Input, o *Output) error {
	for _, r := range rules {
		matched, err := expr.Run(r.Filter, i)
		if err != nil {
			return fmt.Errorf("filter execution: %s: %w", r.Description, err)
		}

		m, ok := matched.(bool)
		if !ok {
			return fmt.Errorf("filter execution: %s: filter did not return a boolean", r.Description)
		}

		if !m {
			continue
		}

		for capName, values := range r.Actions.Capabilities.Add {
			evaluated, err := evaluateCapabilityValues(values, i)
			if err != nil {
				return fmt.Errorf("capability %s: %s: %w", capName, r.Description, err)
			}

			o.Capabilities[capName] = evaluated
		}

		for capName := range r.Actions.Capabilities.Remove {
			delete(o.Capabilities, capName)
		}

		if err := executeRules(r.Children, i, o); err != nil {
			return err
		}
	}

	return nil
}

func evaluateCapabilityValues(values CompiledCapabilityValues, i Input) (map[string]any, error) {
	evaluated := map[string]any{}

	for k, p := range values {
		v, err := expr.Run(p, i)
		if err != nil {
			return nil, fmt.Errorf("value %s execution: %w", k, err)
		}

		evaluated[k] = v
	}

	return evaluated, nil
}
