package ml

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
)

// Split returns shuffled train and test indices for n samples. The same
// seed always yields the same partition.
func Split(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain <= 0 {
		return nil, nil, fmt.Errorf("cannot split %d samples with test ratio %v", n, testRatio)
	}
	rnd := rand.New(rand.NewSource(seed))
	perm := rnd.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}
