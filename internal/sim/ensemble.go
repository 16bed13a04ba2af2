package sim

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
)

// Ensemble runs independent worlds from the same genome concurrently. Run i
// seeds its roots at Roots jittered by up to Jitter per axis using seed
// SeedStart+i; with zero jitter every run is identical.
type Ensemble struct {
	Genome    *genome.Genome
	Config    Config
	Roots     []geom.Vec3
	Runs      int
	SeedStart int64
	Jitter    float64
	// Parallel bounds the number of worlds stepping at once; zero means no
	// limit.
	Parallel int
}

func (e *Ensemble) Run(ctx context.Context, steps int, dt float64) ([]*Result, error) {
	results := make([]*Result, e.Runs)

	g, ctx := errgroup.WithContext(ctx)
	if e.Parallel > 0 {
		g.SetLimit(e.Parallel)
	}
	for i := 0; i < e.Runs; i++ {
		g.Go(func() error {
			w, err := e.world(int64(i))
			if err != nil {
				return err
			}
			res, err := w.Run(ctx, steps, dt)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Ensemble) world(i int64) (*World, error) {
	w, err := New(e.Genome, e.Config)
	if err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(e.SeedStart + i))
	for _, p := range e.Roots {
		if e.Jitter > 0 {
			p = p.Add(geom.V(
				(r.Float64()*2-1)*e.Jitter,
				(r.Float64()*2-1)*e.Jitter,
				(r.Float64()*2-1)*e.Jitter,
			))
		}
		if _, err := w.SpawnRoot(nil, p); err != nil {
			return nil, err
		}
	}
	return w, nil
}
