package refine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// passScripts returns a source factory that hands out one script per pass
// and an empty source once the scripts run out.
func passScripts(scripts ...[]Move) func() MoveSource {
	pass := 0
	return func() MoveSource {
		if pass >= len(scripts) {
			return &scriptedSource{}
		}
		src := &scriptedSource{moves: scripts[pass]}
		pass++
		return src
	}
}

func TestRefine_RepeatsWhileImproving(t *testing.T) {
	p := newGainPartition(10, 3)
	newSource := passScripts(
		[]Move{{Vertex: 0, From: 0, To: 1, Gain: 2}, {Vertex: 1, From: 0, To: 1, Gain: -1}},
		[]Move{{Vertex: 1, From: 0, To: 1, Gain: 1}},
		[]Move{{Vertex: 2, From: 0, To: 1, Gain: -4}},
		[]Move{{Vertex: 2, From: 0, To: 1, Gain: 9}},
	)

	loop, err := NewSearchLoop(Config{StoppingRule: RuleSimple, MaxFruitlessMoves: 5})
	if err != nil {
		t.Fatalf("NewSearchLoop failed: %v", err)
	}

	res, err := Refine(context.Background(), loop, p, newSource, 0)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	// third pass does not improve, so the fourth never runs
	if len(res.Passes) != 3 {
		t.Fatalf("Expected 3 passes, got %d", len(res.Passes))
	}
	if res.InitialCut != 10 || res.FinalCut != 7 {
		t.Errorf("Expected 10 -> 7, got %d -> %d", res.InitialCut, res.FinalCut)
	}
	if res.TotalMoves() != 4 {
		t.Errorf("Expected 4 total moves, got %d", res.TotalMoves())
	}
}

func TestRefine_MaxPasses(t *testing.T) {
	p := newGainPartition(10, 3)
	newSource := passScripts(
		[]Move{{Vertex: 0, From: 0, To: 1, Gain: 1}},
		[]Move{{Vertex: 1, From: 0, To: 1, Gain: 1}},
		[]Move{{Vertex: 2, From: 0, To: 1, Gain: 1}},
	)

	loop, err := NewSearchLoop(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSearchLoop failed: %v", err)
	}

	res, err := Refine(context.Background(), loop, p, newSource, 2)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if len(res.Passes) != 2 || res.FinalCut != 8 {
		t.Errorf("Expected 2 passes ending at 8, got %d passes ending at %d", len(res.Passes), res.FinalCut)
	}
}

func TestRefine_Aborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newGainPartition(10, 1)
	loop, err := NewSearchLoop(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSearchLoop failed: %v", err)
	}

	res, err := Refine(ctx, loop, p, passScripts([]Move{{Vertex: 0, From: 0, To: 1, Gain: 3}}), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res.FinalCut != 10 || len(res.Passes) != 1 || res.Passes[0].Reason != StopAborted {
		t.Errorf("unexpected aborted result %+v", res)
	}
}

func TestRunParallel_IndependentPolicies(t *testing.T) {
	const jobs = 8
	cfg := Config{StoppingRule: RuleAdaptiveOpt, Alpha: 1, Beta: 50}

	var parts []*gainPartition
	var js []Job
	for i := 0; i < jobs; i++ {
		p := newGainPartition(100, 10)
		parts = append(parts, p)
		gains := make([]int64, 10)
		for j := range gains {
			gains[j] = int64(i%3) - 1
		}
		js = append(js, Job{
			Partition: p,
			NewSource: passScripts(movesForGains(gains...)),
			MaxPasses: 1,
		})
	}

	results, err := RunParallel(context.Background(), cfg, js, 3)
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}
	if len(results) != jobs {
		t.Fatalf("Expected %d results, got %d", jobs, len(results))
	}

	for i, res := range results {
		if res == nil {
			t.Fatalf("job %d has no result", i)
		}
		if res.FinalCut > res.InitialCut {
			t.Errorf("job %d got worse: %d -> %d", i, res.InitialCut, res.FinalCut)
		}
		if parts[i].Cut() != res.FinalCut {
			t.Errorf("job %d: partition cut %d differs from result %d", i, parts[i].Cut(), res.FinalCut)
		}
		// constant gains keep variance 0 and 10*1 > 50 never holds, so all moves run
		if i%3 == 2 && res.Passes[0].MovesApplied != 10 {
			t.Errorf("job %d: expected 10 moves, got %d", i, res.Passes[0].MovesApplied)
		}
	}
}

func TestRunParallel_InvalidConfig(t *testing.T) {
	_, err := RunParallel(context.Background(), Config{StoppingRule: StoppingRule(5)}, nil, 0)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestRunParallel_PropagatesErrors(t *testing.T) {
	bad := newGainPartition(10, 1)
	bad.failAt = 0

	js := []Job{
		{Partition: newGainPartition(10, 1), NewSource: passScripts(movesForGains(1)), MaxPasses: 1},
		{Partition: bad, NewSource: passScripts(movesForGains(1)), MaxPasses: 1},
	}

	_, err := RunParallel(context.Background(), DefaultConfig(), js, 0)
	if err == nil {
		t.Fatal("Expected error from failing job")
	}
}

// alternatingJobs builds n jobs of one pass each, every pass a script of
// moves alternating between gain +1 and -1.
func alternatingJobs(n, moves int) ([]Job, []*gainPartition) {
	gains := make([]int64, moves)
	for j := range gains {
		gains[j] = 1 - 2*int64(j%2)
	}

	var js []Job
	var parts []*gainPartition
	for i := 0; i < n; i++ {
		p := newGainPartition(1000, moves)
		parts = append(parts, p)
		js = append(js, Job{
			Partition: p,
			NewSource: passScripts(movesForGains(gains...)),
			MaxPasses: 1,
		})
	}
	return js, parts
}

func TestRunParallel_RejectsSharedPolicy(t *testing.T) {
	cfg := Config{StoppingRule: RuleAdaptiveOpt, Alpha: 1, Beta: 1e9}
	js, parts := alternatingJobs(8, 200)
	shared := &RandomWalkPolicy{}

	results, err := RunParallel(context.Background(), cfg, js, 0, WithPolicy(shared))

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "Policy" {
		t.Errorf("Expected field Policy, got %s", cfgErr.Field)
	}
	if results != nil {
		t.Errorf("Expected no results, got %d", len(results))
	}
	if shared.NumSteps() != 0 {
		t.Errorf("Expected shared policy untouched, got %d steps", shared.NumSteps())
	}
	for i, p := range parts {
		if len(p.applied) != 0 {
			t.Errorf("job %d: expected no moves, got %d", i, len(p.applied))
		}
	}
}

func TestRunParallel_PolicyFactory(t *testing.T) {
	const jobs = 8
	const moves = 200
	cfg := Config{StoppingRule: RuleAdaptiveOpt, Alpha: 1, Beta: 1e9}
	js, _ := alternatingJobs(jobs, moves)

	var (
		mu       sync.Mutex
		policies []*RandomWalkPolicy
	)
	factory := func() StopPolicy {
		p := &RandomWalkPolicy{}
		mu.Lock()
		policies = append(policies, p)
		mu.Unlock()
		return p
	}

	results, err := RunParallel(context.Background(), cfg, js, 0, WithPolicyFactory(factory))
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}

	// one instance for the option check plus one per job
	if len(policies) != jobs+1 {
		t.Fatalf("Expected %d policies, got %d", jobs+1, len(policies))
	}
	used := 0
	for _, p := range policies {
		switch p.NumSteps() {
		case 0:
		case moves:
			used++
		default:
			t.Errorf("Expected 0 or %d steps, got %d", moves, p.NumSteps())
		}
	}
	if used != jobs {
		t.Errorf("Expected %d policies with %d steps, got %d", jobs, moves, used)
	}
	for i, res := range results {
		if res.Passes[0].MovesApplied != moves {
			t.Errorf("job %d: expected %d moves, got %d", i, moves, res.Passes[0].MovesApplied)
		}
	}
}
