package label

import (
	"errors"
	"fmt"
	"math"
)

const (
	MethodMajority = "majority"
	MethodWeighted = "weighted"
	MethodImported = "imported"

	// Accuracy clamp keeps a perfectly-scoring dev LF from collapsing
	// the weighted posterior to exactly 0 or 1.
	accuracyFloor   = 0.05
	accuracyCeiling = 0.95
)

var ResolveMethods = []string{MethodMajority, MethodWeighted, MethodImported}

// ProbLabel is a document's resolved probabilistic label.
type ProbLabel struct {
	DocID     string  `json:"doc_id" yaml:"doc_id"`
	PAbnormal float64 `json:"p_abnormal" yaml:"p_abnormal"`
	Label     Vote    `json:"label" yaml:"label"`
}

// HardLabel maps a probability to a vote; 0.5 counts as abnormal so a
// coin-flip posterior errs toward the finding.
func HardLabel(p float64) Vote {
	if p >= 0.5 {
		return Abnormal
	}
	return Normal
}

// MajorityVote resolves each row to the share of abnormal among cast
// votes. Rows with no votes, or a tie, land on 0.5.
func MajorityVote(m *Matrix) ([]*ProbLabel, error) {
	if m == nil {
		return nil, errors.New("nil matrix")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	out := make([]*ProbLabel, 0, len(m.Docs))
	for i, docID := range m.Docs {
		ab, no := 0, 0
		for _, v := range m.Cells[i] {
			switch v {
			case Abnormal:
				ab++
			case Normal:
				no++
			}
		}

		p := 0.5
		if ab+no > 0 {
			p = float64(ab) / float64(ab+no)
		}

		out = append(out, &ProbLabel{
			DocID:     docID,
			PAbnormal: p,
			Label:     HardLabel(p),
		})
	}

	return out, nil
}

// EstimateAccuracies counts each LF's empirical accuracy over gold
// labels, typically from the dev split. LFs that never vote on a
// gold-labeled document are omitted.
func EstimateAccuracies(m *Matrix, golds map[string]Vote) (map[string]float64, error) {
	if m == nil {
		return nil, errors.New("nil matrix")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	correct := make([]int, len(m.LFs))
	total := make([]int, len(m.LFs))

	for i, docID := range m.Docs {
		gold, ok := golds[docID]
		if !ok || gold == Abstain {
			continue
		}
		for j, v := range m.Cells[i] {
			if v == Abstain {
				continue
			}
			total[j]++
			if v == gold {
				correct[j]++
			}
		}
	}

	acc := make(map[string]float64, len(m.LFs))
	for j, name := range m.LFs {
		if total[j] == 0 {
			continue
		}
		acc[name] = float64(correct[j]) / float64(total[j])
	}

	return acc, nil
}

// EstimatePrior returns the abnormal share of the gold labels, 0.5
// when there are none.
func EstimatePrior(golds map[string]Vote) float64 {
	ab, total := 0, 0
	for _, g := range golds {
		switch g {
		case Abnormal:
			ab++
			total++
		case Normal:
			total++
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(ab) / float64(total)
}

// WeightedResolver combines votes under conditional independence using
// per-LF accuracies and a class prior. This is closed-form counting on
// a labeled dev split, not the label model's EM fit; externally learned
// labels come in through the import path instead.
type WeightedResolver struct {
	Accuracies    map[string]float64
	PriorAbnormal float64
}

func NewWeightedResolver(accuracies map[string]float64, prior float64) *WeightedResolver {
	return &WeightedResolver{
		Accuracies:    accuracies,
		PriorAbnormal: prior,
	}
}

// Resolve computes P(abnormal|votes) per document.
func (r *WeightedResolver) Resolve(m *Matrix) ([]*ProbLabel, error) {
	if m == nil {
		return nil, errors.New("nil matrix")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	prior := r.PriorAbnormal
	if prior <= 0 || prior >= 1 {
		return nil, fmt.Errorf("prior must be in (0, 1), got %f", prior)
	}

	out := make([]*ProbLabel, 0, len(m.Docs))
	for i, docID := range m.Docs {
		logAb := math.Log(prior)
		logNo := math.Log(1 - prior)
		cast := 0

		for j, v := range m.Cells[i] {
			if v == Abstain {
				continue
			}
			cast++
			acc := r.accuracy(m.LFs[j])
			switch v {
			case Abnormal:
				logAb += math.Log(acc)
				logNo += math.Log(1 - acc)
			case Normal:
				logAb += math.Log(1 - acc)
				logNo += math.Log(acc)
			}
		}

		// no votes leaves the posterior at the prior
		p := prior
		if cast > 0 {
			// normalize in log space
			max := math.Max(logAb, logNo)
			ab := math.Exp(logAb - max)
			no := math.Exp(logNo - max)
			p = ab / (ab + no)
		}

		out = append(out, &ProbLabel{
			DocID:     docID,
			PAbnormal: p,
			Label:     HardLabel(p),
		})
	}

	return out, nil
}

func (r *WeightedResolver) accuracy(lf string) float64 {
	acc, ok := r.Accuracies[lf]
	if !ok {
		// uninformative: contributes equally to both classes
		return 0.5
	}
	if acc < accuracyFloor {
		return accuracyFloor
	}
	if acc > accuracyCeiling {
		return accuracyCeiling
	}
	return acc
}
