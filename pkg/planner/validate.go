package planner

import "fmt"

// ValidationError reports one structural plan defect, adapted from the
// teacher's pkg/models.ValidationError{Field, Message} shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("planner: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every defect found in one validation pass,
// adapted from the teacher's pkg/models.ValidationErrors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "planner: plan validation failed"
	}
	return e[0].Error()
}

// Validate checks the structural rules spec.md §4.7 step 2 names: every
// referenced function/evaluator id exists, the flow start and every block's
// next id exist, execution_graph evaluator references resolve, and each function
// has exactly one body form.
func Validate(p *Plan) error {
	var errs ValidationErrors

	functionNames := make(map[string]bool, len(p.Functions))
	for _, fn := range p.Functions {
		if fn.Name == "" {
			errs = append(errs, ValidationError{Field: "functions[].name", Message: "function name is empty"})
			continue
		}
		functionNames[fn.Name] = true
		if fn.WAT != "" && fn.IR != nil {
			errs = append(errs, ValidationError{Field: "functions[" + fn.Name + "]", Message: "has both wat and ir bodies; exactly one is allowed"})
		}
	}

	blockIDs := make(map[string]bool, len(p.Flow.Blocks))
	for _, b := range p.Flow.Blocks {
		blockIDs[b.ID] = true
	}
	if p.Flow.Start != "" && !blockIDs[p.Flow.Start] {
		errs = append(errs, ValidationError{Field: "flow.start", Message: fmt.Sprintf("no block with id %q", p.Flow.Start)})
	}
	for _, b := range p.Flow.Blocks {
		if b.Next != "" && !blockIDs[b.Next] {
			errs = append(errs, ValidationError{Field: "flow.blocks[" + b.ID + "].next", Message: fmt.Sprintf("no block with id %q", b.Next)})
		}
	}

	evaluatorIDs := make(map[string]bool, len(p.Evaluators))
	for _, ev := range p.Evaluators {
		if ev.ID == "" {
			errs = append(errs, ValidationError{Field: "evaluators[].id", Message: "evaluator id is empty"})
			continue
		}
		evaluatorIDs[ev.ID] = true
		if ev.Type == EvaluatorFunction && ev.FunctionName != "" && !functionNames[ev.FunctionName] {
			errs = append(errs, ValidationError{Field: "evaluators[" + ev.ID + "].function_name", Message: fmt.Sprintf("no function named %q", ev.FunctionName)})
		}
	}

	if p.ExecutionGraph != nil {
		for _, node := range p.ExecutionGraph.Nodes {
			switch node.Kind {
			case "range_scan":
				if node.RangeScan == nil {
					errs = append(errs, ValidationError{Field: "execution_graph.nodes[" + node.ID + "]", Message: "kind is range_scan but range_scan is absent"})
					continue
				}
				if !evaluatorIDs[node.RangeScan.EvaluatorID] {
					errs = append(errs, ValidationError{Field: "execution_graph.nodes[" + node.ID + "].range_scan.evaluator_id", Message: fmt.Sprintf("no evaluator %q", node.RangeScan.EvaluatorID)})
				}
			case "switch_scan":
				if node.SwitchScan == nil {
					errs = append(errs, ValidationError{Field: "execution_graph.nodes[" + node.ID + "]", Message: "kind is switch_scan but switch_scan is absent"})
					continue
				}
				for i, stage := range node.SwitchScan.Stages {
					if !evaluatorIDs[stage.EvaluatorID] {
						errs = append(errs, ValidationError{Field: fmt.Sprintf("execution_graph.nodes[%s].switch_scan.stages[%d].evaluator_id", node.ID, i), Message: fmt.Sprintf("no evaluator %q", stage.EvaluatorID)})
					}
				}
			default:
				errs = append(errs, ValidationError{Field: "execution_graph.nodes[" + node.ID + "].kind", Message: fmt.Sprintf("unknown scan kind %q", node.Kind)})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
