package clustering

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// ErrTooFewSamples is returned when asked for more centres than samples.
var ErrTooFewSamples = errors.New("fewer samples than centres")

// Partitioner splits observations into k clusters.
type Partitioner interface {
	Partition(obs clusters.Observations, k int) (clusters.Clusters, error)
}

// Stock returns the muesli/kmeans partitioner. Its initial centres are drawn
// from an unseeded source, so repeated runs can differ.
func Stock() Partitioner {
	return kmeans.New()
}

// Lloyd is a deterministic k-means partitioner. Initial centres are chosen by
// k-means++ from a source re-seeded with Seed on every call, so the same
// observations always give the same clusters.
type Lloyd struct {
	Seed          uint64
	MaxIterations int
}

// Partition implements Partitioner.
func (l Lloyd) Partition(obs clusters.Observations, k int) (clusters.Clusters, error) {
	if k <= 0 || k > len(obs) {
		return nil, fmt.Errorf("partitioning %d samples into %d clusters: %w", len(obs), k, ErrTooFewSamples)
	}

	iterations := l.MaxIterations
	if iterations <= 0 {
		iterations = DefaultConfig().MaxIterations
	}

	rng := rand.New(rand.NewPCG(l.Seed, l.Seed))
	cc := seedCentres(obs, k, rng)

	for i := 0; i < iterations; i++ {
		cc.Reset()
		for _, o := range obs {
			n := cc.Nearest(o)
			cc[n].Append(o)
		}

		previous := make([]clusters.Coordinates, len(cc))
		for j := range cc {
			previous[j] = cc[j].Center
		}

		cc.Recenter()

		moved := false
		for j := range cc {
			if !slices.Equal(previous[j], cc[j].Center) {
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}

	return cc, nil
}

// seedCentres picks k initial centres with k-means++: the first uniformly,
// each further one with probability proportional to its squared distance
// from the nearest centre already chosen.
func seedCentres(obs clusters.Observations, k int, rng *rand.Rand) clusters.Clusters {
	cc := make(clusters.Clusters, 0, k)
	cc = append(cc, newCluster(obs[rng.IntN(len(obs))]))

	weights := make([]float64, len(obs))
	for len(cc) < k {
		total := 0.0
		for i, o := range obs {
			weights[i] = o.Distance(cc[cc.Nearest(o)].Center)
			total += weights[i]
		}

		// All remaining samples coincide with a centre.
		if total == 0 {
			cc = append(cc, newCluster(obs[rng.IntN(len(obs))]))
			continue
		}

		target := rng.Float64() * total
		pick := len(obs) - 1
		for i, w := range weights {
			target -= w
			if target < 0 {
				pick = i
				break
			}
		}
		cc = append(cc, newCluster(obs[pick]))
	}
	return cc
}

func newCluster(o clusters.Observation) clusters.Cluster {
	return clusters.Cluster{Center: slices.Clone(o.Coordinates())}
}
