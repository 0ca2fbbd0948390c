// Package aggregate provides grouping and weighted-average reductions over
// record slices.
package aggregate

import "errors"

// ErrZeroWeight is returned when a partition's total weight is zero, which
// would make the weighted average a division by zero.
var ErrZeroWeight = errors.New("aggregate: total weight is zero")

// GroupBy partitions records by the extracted key. The result holds one entry
// per distinct key present in the input; order within a partition follows the
// input, order across keys is unspecified.
func GroupBy[K comparable, T any](records []T, key func(T) K) map[K][]T {
	groups := make(map[K][]T)
	for _, r := range records {
		k := key(r)
		groups[k] = append(groups[k], r)
	}
	return groups
}

// WeightedAverageBy groups records by key and reduces each partition to
// sum(value×weight)/sum(weight). Any partition with zero total weight fails
// the whole call with ErrZeroWeight.
func WeightedAverageBy[K comparable, T any](records []T, key func(T) K, value, weight func(T) float64) (map[K]float64, error) {
	means := make(map[K]*WeightedMean)
	for _, r := range records {
		k := key(r)
		m, ok := means[k]
		if !ok {
			m = &WeightedMean{}
			means[k] = m
		}
		m.Add(value(r), weight(r))
	}

	result := make(map[K]float64, len(means))
	for k, m := range means {
		avg, err := m.Value()
		if err != nil {
			return nil, err
		}
		result[k] = avg
	}
	return result, nil
}

// WeightedMean accumulates value/weight pairs for a streaming weighted average.
type WeightedMean struct {
	weightedSum float64
	totalWeight float64
	count       int
}

// Add records one observation.
func (m *WeightedMean) Add(value, weight float64) {
	m.weightedSum += value * weight
	m.totalWeight += weight
	m.count++
}

// Value returns the weighted average, or ErrZeroWeight when no weight has
// accumulated.
func (m *WeightedMean) Value() (float64, error) {
	if m.totalWeight == 0 {
		return 0, ErrZeroWeight
	}
	return m.weightedSum / m.totalWeight, nil
}

// Count returns the number of observations added.
func (m *WeightedMean) Count() int { return m.count }

// TotalWeight returns the accumulated weight.
func (m *WeightedMean) TotalWeight() float64 { return m.totalWeight }
