package expression

import (
	"sort"

	"permde/domain/core"
)

// GroupLabels assigns each observation to group A (true) or group B (false).
type GroupLabels []bool

// Sizes returns the member counts of group A and group B.
func (g GroupLabels) Sizes() (int, int) {
	a := 0
	for _, in := range g {
		if in {
			a++
		}
	}
	return a, len(g) - a
}

// Validate checks alignment with the observation axis and that both groups are populated.
func (g GroupLabels) Validate(observations int) error {
	if len(g) != observations {
		return core.NewLabelLengthError(len(g), observations)
	}
	a, b := g.Sizes()
	if a == 0 {
		return core.NewEmptyGroupError("A")
	}
	if b == 0 {
		return core.NewEmptyGroupError("B")
	}
	return nil
}

// ClassLabels names the class of every observation for multi-class inputs.
type ClassLabels []core.ClassName

// Classes returns the distinct class names in sorted order.
func (c ClassLabels) Classes() []core.ClassName {
	seen := make(map[core.ClassName]struct{})
	for _, name := range c {
		seen[name] = struct{}{}
	}
	out := make([]core.ClassName, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OneVsRest builds labels where group A is class and group B everything else.
func (c ClassLabels) OneVsRest(class core.ClassName) (GroupLabels, error) {
	g := make(GroupLabels, len(c))
	found := false
	for i, name := range c {
		if name == class {
			g[i] = true
			found = true
		}
	}
	if !found {
		return nil, core.NewConfigurationError("class", "no observations labelled "+class.String())
	}
	return g, nil
}
