package arguments

import (
	"fmt"
	"maps"
)

// maxWorklistIterations bounds the argument traversal. Dynamic child
// registration could otherwise loop forever on a pathological schema.
const maxWorklistIterations = 10000

// Parser validates a parameter map against a set of argument
// definitions.
type Parser struct {
	arguments []Argument
	strict    bool
}

// NewParser builds a Parser. In strict mode, parameters without a
// matching argument definition are rejected.
func NewParser(strict bool, args ...Argument) *Parser {
	return &Parser{arguments: args, strict: strict}
}

// AddArguments appends argument definitions to the parser.
func (p *Parser) AddArguments(args ...Argument) {
	p.arguments = append(p.arguments, args...)
}

// Parse checks the parameters against the argument definitions and
// returns the validated, coerced values. Traversal is an explicit
// worklist rather than recursion: parsing an argument may register
// child arguments which are pushed onto the stack and validated in the
// same pass.
func (p *Parser) Parse(parameters map[string]any) (map[string]any, error) {
	remaining := maps.Clone(parameters)
	if remaining == nil {
		remaining = map[string]any{}
	}
	parsed := make(map[string]any)

	worklist := make([]Argument, len(p.arguments))
	copy(worklist, p.arguments)

	iterations := 0
	for len(worklist) > 0 {
		iterations++
		if iterations > maxWorklistIterations {
			return nil, fmt.Errorf("argument validation exceeded %d iterations", maxWorklistIterations)
		}

		argument := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		value, present := remaining[argument.Name()]
		switch {
		case present:
			parsedValue, err := argument.Parse(value)
			if err != nil {
				return nil, err
			}
			parsed[argument.Name()] = parsedValue
			delete(remaining, argument.Name())
			worklist = append(worklist, argument.Children()...)
		case argument.Required():
			return nil, fmt.Errorf("argument %q not provided", argument.Name())
		default:
			if defaultValue, ok := argument.Default(); ok {
				parsed[argument.Name()] = defaultValue
			}
		}
	}

	if p.strict && len(remaining) > 0 {
		for name := range remaining {
			return nil, fmt.Errorf("unknown argument %q", name)
		}
	}
	return parsed, nil
}
