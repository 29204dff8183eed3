package cluster

import "imagecull/internal/fingerprint"

// bkTree indexes fingerprints under Hamming distance so that all entries
// within a radius can be found without a full scan.
type bkTree struct {
	root *bkNode
}

type bkNode struct {
	fp       fingerprint.Fingerprint
	index    int
	children map[int]*bkNode // distance -> child node
}

func newBKTree() *bkTree {
	return &bkTree{}
}

// insert adds a fingerprint with its position in the sorted identifier list.
func (t *bkTree) insert(fp fingerprint.Fingerprint, index int) error {
	node := &bkNode{
		fp:       fp,
		index:    index,
		children: make(map[int]*bkNode),
	}

	if t.root == nil {
		t.root = node
		return nil
	}

	current := t.root
	for {
		dist, err := fp.Distance(current.fp)
		if err != nil {
			return err
		}
		if child, exists := current.children[dist]; exists {
			current = child
		} else {
			current.children[dist] = node
			return nil
		}
	}
}

// findWithinDistance returns the indices of all entries at most radius away.
func (t *bkTree) findWithinDistance(fp fingerprint.Fingerprint, radius int) ([]int, error) {
	if t.root == nil {
		return nil, nil
	}

	var results []int
	if err := t.searchNode(t.root, fp, radius, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *bkTree) searchNode(node *bkNode, fp fingerprint.Fingerprint, radius int, results *[]int) error {
	dist, err := fp.Distance(node.fp)
	if err != nil {
		return err
	}

	if dist <= radius {
		*results = append(*results, node.index)
	}

	// Triangle inequality bounds the children worth visiting
	minDist := dist - radius
	if minDist < 0 {
		minDist = 0
	}
	maxDist := dist + radius

	for childDist, child := range node.children {
		if childDist >= minDist && childDist <= maxDist {
			if err := t.searchNode(child, fp, radius, results); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *bkTree) size() int {
	if t.root == nil {
		return 0
	}
	return countNodes(t.root)
}

func countNodes(node *bkNode) int {
	count := 1
	for _, child := range node.children {
		count += countNodes(child)
	}
	return count
}
