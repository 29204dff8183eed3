// Package cluster groups near-duplicate images by fingerprint similarity.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"imagecull/internal/fingerprint"
	"imagecull/internal/models"
)

var (
	// ErrMixedBitLengths is returned when fingerprints differ in length.
	ErrMixedBitLengths = errors.New("fingerprints have different bit lengths")
	// ErrInvalidThreshold is returned for thresholds outside [0, 100].
	ErrInvalidThreshold = errors.New("similarity threshold must be between 0 and 100")
)

// Cluster partitions images into star groups. Identifiers are visited in
// lexicographic order; each unused identifier becomes a pivot and collects
// every later unused identifier whose similarity to the pivot reaches
// minSimilarity. Members are compared only with their pivot, so two
// members of one group may be less similar to each other than the threshold.
func Cluster(fps map[string]fingerprint.Fingerprint, minSimilarity float64) ([]models.Group, error) {
	ids, bits, err := prepare(fps, minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, nil
	}

	tree := newBKTree()
	for i, id := range ids {
		if err := tree.insert(fps[id], i); err != nil {
			return nil, err
		}
	}
	radius := fingerprint.MaxDistance(minSimilarity, bits)

	used := make([]bool, len(ids))
	var groups []models.Group
	for i, pivot := range ids {
		if used[i] {
			continue
		}
		candidates, err := tree.findWithinDistance(fps[pivot], radius)
		if err != nil {
			return nil, err
		}

		var matched []int
		for _, j := range candidates {
			if j <= i || used[j] {
				continue
			}
			ok, err := qualifies(fps[pivot], fps[ids[j]], minSimilarity)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, j)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Ints(matched)

		members := make([]string, 0, len(matched)+1)
		members = append(members, pivot)
		used[i] = true
		for _, j := range matched {
			members = append(members, ids[j])
			used[j] = true
		}
		groups = append(groups, models.Group{Index: len(groups) + 1, Members: members})
	}
	return groups, nil
}

// BruteForce is the quadratic reference form of Cluster.
func BruteForce(fps map[string]fingerprint.Fingerprint, minSimilarity float64) ([]models.Group, error) {
	ids, _, err := prepare(fps, minSimilarity)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(ids))
	var groups []models.Group
	for i, pivot := range ids {
		if used[pivot] {
			continue
		}
		members := []string{pivot}
		for _, q := range ids[i+1:] {
			if used[q] {
				continue
			}
			ok, err := qualifies(fps[pivot], fps[q], minSimilarity)
			if err != nil {
				return nil, err
			}
			if ok {
				members = append(members, q)
			}
		}
		if len(members) > 1 {
			for _, m := range members {
				used[m] = true
			}
			groups = append(groups, models.Group{Index: len(groups) + 1, Members: members})
		}
	}
	return groups, nil
}

func qualifies(a, b fingerprint.Fingerprint, minSimilarity float64) (bool, error) {
	sim, err := fingerprint.Similarity(a, b)
	if err != nil {
		return false, err
	}
	return sim >= minSimilarity, nil
}

// prepare validates the input and returns sorted identifiers and the shared bit length.
func prepare(fps map[string]fingerprint.Fingerprint, minSimilarity float64) ([]string, int, error) {
	if math.IsNaN(minSimilarity) || minSimilarity < 0 || minSimilarity > 100 {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidThreshold, minSimilarity)
	}

	ids := make([]string, 0, len(fps))
	bits := 0
	for id, fp := range fps {
		if fp.IsZero() {
			return nil, 0, fmt.Errorf("empty fingerprint for %s", id)
		}
		if bits == 0 {
			bits = fp.Bits()
		} else if fp.Bits() != bits {
			return nil, 0, fmt.Errorf("%w: %d and %d", ErrMixedBitLengths, bits, fp.Bits())
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, bits, nil
}
