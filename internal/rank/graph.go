package rank

import "github.com/arlberg/triage/internal/model"

type mark uint8

const (
	unmarked mark = iota
	temporary
	permanent
)

// topoSort orders cases so that every case appears after all of its
// prerequisites, using a depth-first sort with two-color marking.
// Prerequisites that reference cases outside the batch are ignored.
// A cycle (including a self-dependency) yields a CircularDependencyError
// naming an offending case id.
func topoSort(cases []model.TestCase) ([]model.TestCase, error) {
	index := make(map[string]int, len(cases))
	for i, c := range cases {
		index[c.ID] = i
	}

	marks := make([]mark, len(cases))
	ordered := make([]model.TestCase, 0, len(cases))

	var visit func(i int) error
	visit = func(i int) error {
		switch marks[i] {
		case permanent:
			return nil
		case temporary:
			return model.CircularDependencyError{CaseID: cases[i].ID}
		}

		marks[i] = temporary

		for _, prereq := range cases[i].Prerequisites {
			if prereq == cases[i].ID {
				return model.CircularDependencyError{CaseID: cases[i].ID}
			}

			j, ok := index[prereq]
			if !ok {
				continue
			}

			if err := visit(j); err != nil {
				return err
			}
		}

		marks[i] = permanent
		ordered = append(ordered, cases[i])

		return nil
	}

	for i := range cases {
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}
