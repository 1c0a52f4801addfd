package classify

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ROCAUC returns the area under the ROC curve of scores against binary
// labels. Tied scores contribute half credit.
func ROCAUC(scores []float64, labels []int) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("%d scores but %d labels", len(scores), len(labels))
	}

	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	var pos int
	for i, l := range labels {
		switch l {
		case 0:
		case 1:
			classes[i] = true
			pos++
		default:
			return 0, fmt.Errorf("label %d at index %d is not 0 or 1", l, i)
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, fmt.Errorf("ROC-AUC needs both classes, got %d positive of %d", pos, len(labels))
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
