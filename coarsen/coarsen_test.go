package coarsen

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

func makeGrid(t *testing.T, size vox.Dims, labels []int32) *vox.Grid {
	g, err := vox.NewGrid(size, labels)
	if err != nil {
		t.Fatalf("can't make grid %s: %v\n", size, err)
	}
	return g
}

func randomGrid(t *testing.T, size vox.Dims, numLabels int, seed int64) *vox.Grid {
	rng := rand.New(rand.NewSource(seed))
	labels := make([]int32, size.Prod())
	for i := range labels {
		labels[i] = int32(rng.Intn(numLabels))
	}
	return makeGrid(t, size, labels)
}

func checkLabels(t *testing.T, msg string, expected, got []int32) {
	if len(expected) != len(got) {
		t.Fatalf("%s: expected %d labels, got %d\n", msg, len(expected), len(got))
	}
	for i := range expected {
		if expected[i] != got[i] {
			t.Fatalf("%s: label %d expected %d, got %d\n", msg, i, expected[i], got[i])
		}
	}
}

func TestIdentity(t *testing.T) {
	g := randomGrid(t, vox.Dims{7, 5, 3}, 10, 1)
	for _, b := range Boundaries {
		for _, r := range Rules {
			out, err := Coarsen(g, 1, Config{Rule: r, Boundary: b})
			if err != nil {
				t.Fatalf("identity coarsen failed: %v\n", err)
			}
			if !out.Equals(g) {
				t.Errorf("k=1 with %s/%s not identity\n", r, b)
			}
			if len(out.Labels) > 0 && &out.Labels[0] == &g.Labels[0] {
				t.Errorf("k=1 output aliases input buffer\n")
			}
		}
	}
}

func TestInvalidFactor(t *testing.T) {
	g := randomGrid(t, vox.Dims{2, 2, 2}, 3, 2)
	for _, k := range []int{0, -1} {
		_, err := Coarsen(g, k, Config{})
		if !errors.Is(err, vox.ErrInvalidFactor) {
			t.Errorf("expected invalid factor error for k=%d, got %v\n", k, err)
		}
	}
	if _, err := Pyramid(context.Background(), g, 0, 2, Config{}); !errors.Is(err, vox.ErrInvalidFactor) {
		t.Errorf("expected invalid factor from pyramid, got %v\n", err)
	}
}

func TestDivisibleLength(t *testing.T) {
	sizes := []vox.Dims{{4, 4, 4}, {8, 4, 12}, {6, 12, 18}}
	for _, size := range sizes {
		for _, k := range []int{2, 3, 4, 6} {
			if size[0]%k != 0 || size[1]%k != 0 || size[2]%k != 0 {
				continue
			}
			g := randomGrid(t, size, 4, int64(k))
			out, err := Coarsen(g, k, Config{})
			if err != nil {
				t.Fatalf("coarsening %s by %d: %v\n", size, k, err)
			}
			expected := (size[0] / k) * (size[1] / k) * (size[2] / k)
			if len(out.Labels) != expected {
				t.Errorf("coarsening %s by %d: expected %d labels, got %d\n", size, k, expected, len(out.Labels))
			}
		}
	}
}

func TestSolidGrid(t *testing.T) {
	g, err := vox.MakeSolidGrid(vox.Dims{4, 4, 4}, 1)
	if err != nil {
		t.Fatalf("can't make solid grid: %v\n", err)
	}
	out, stats, err := CoarsenStats(context.Background(), g, 2, Config{})
	if err != nil {
		t.Fatalf("can't coarsen: %v\n", err)
	}
	if !out.Size.Equals(vox.Dims{2, 2, 2}) {
		t.Fatalf("expected 2x2x2 output, got %s\n", out.Size)
	}
	checkLabels(t, "solid grid", []int32{1, 1, 1, 1, 1, 1, 1, 1}, out.Labels)
	if stats.Blocks != 8 || stats.UniformBlocks != 8 {
		t.Errorf("expected 8 uniform blocks, got %+v\n", stats)
	}
}

func TestHalfBackgroundBlock(t *testing.T) {
	// z = 0 plane is background, z = 1 plane is label 1.
	g := makeGrid(t, vox.Dims{2, 2, 2}, []int32{0, 0, 0, 0, 1, 1, 1, 1})
	expected := map[Rule]int32{
		Mode:         0,
		ModeNonzero:  1,
		FirstNonzero: 1,
	}
	for rule, lbl := range expected {
		out, err := Coarsen(g, 2, Config{Rule: rule})
		if err != nil {
			t.Fatalf("coarsen with %s: %v\n", rule, err)
		}
		if !out.Size.Equals(vox.Dims{1, 1, 1}) {
			t.Fatalf("expected 1x1x1 output, got %s\n", out.Size)
		}
		if out.Labels[0] != lbl {
			t.Errorf("rule %s: expected label %d, got %d\n", rule, lbl, out.Labels[0])
		}
	}
}

func TestRules(t *testing.T) {
	tests := []struct {
		rule       Rule
		background int32
		block      []int32
		expected   int32
	}{
		{Mode, 0, []int32{5, 3, 5, 3, 7, 7, 7, 1}, 7},
		{Mode, 0, []int32{5, 3, 5, 3, 9, 9, 1, 2}, 3},
		{Mode, 0, []int32{-4, 8, -4, 8}, -4},
		{Mode, 0, []int32{0, 0, 0, 2, 2, 3, 3, 4}, 0},
		{ModeNonzero, 0, []int32{0, 0, 0, 2, 2, 3, 3, 4}, 2},
		{ModeNonzero, 0, []int32{0, 0, 0, 0}, 0},
		{ModeNonzero, 9, []int32{9, 9, 9, 4, 4, 2}, 4},
		{ModeNonzero, 9, []int32{9, 9}, 9},
		{FirstNonzero, 0, []int32{0, 0, 6, 2, 2, 2}, 6},
		{FirstNonzero, 0, []int32{0, 0, 0}, 0},
		{FirstNonzero, 6, []int32{6, 0, 2}, 0},
	}
	for i, tc := range tests {
		block := append([]int32{}, tc.block...)
		if got := tc.rule.reduce(block, tc.background); got != tc.expected {
			t.Errorf("test %d (%s on %v): expected %d, got %d\n", i, tc.rule, tc.block, tc.expected, got)
		}
	}
}

func TestRuleScanOrder(t *testing.T) {
	// within the single block, scan order visits (1,0,0) before (0,1,0) before (0,0,1).
	labels := make([]int32, 8)
	labels[1] = 11 // (1,0,0)
	labels[2] = 22 // (0,1,0)
	labels[4] = 44 // (0,0,1)
	g := makeGrid(t, vox.Dims{2, 2, 2}, labels)
	out, err := Coarsen(g, 2, Config{Rule: FirstNonzero})
	if err != nil {
		t.Fatalf("can't coarsen: %v\n", err)
	}
	if out.Labels[0] != 11 {
		t.Errorf("expected first non-background label 11, got %d\n", out.Labels[0])
	}
}

func TestOversizedFactor(t *testing.T) {
	g := randomGrid(t, vox.Dims{3, 5, 2}, 3, 3)
	for _, b := range Boundaries {
		out, err := Coarsen(g, 10, Config{Boundary: b})
		if err != nil {
			t.Fatalf("oversized factor with %s: %v\n", b, err)
		}
		if !out.Size.Equals(vox.Dims{1, 1, 1}) {
			t.Errorf("oversized factor with %s: expected 1x1x1, got %s\n", b, out.Size)
		}
		counts := g.CountLabels()
		var best int32
		bestCount := -1
		for lbl := int32(0); lbl < 3; lbl++ {
			if counts[lbl] > bestCount {
				best, bestCount = lbl, counts[lbl]
			}
		}
		if out.Labels[0] != best {
			t.Errorf("oversized factor with %s: expected mode %d over whole grid, got %d\n", b, best, out.Labels[0])
		}
	}
}

func TestBoundarySizes(t *testing.T) {
	size := vox.Dims{5, 4, 7}
	tests := []struct {
		boundary Boundary
		k        int
		expected vox.Dims
	}{
		{Truncate, 2, vox.Dims{2, 2, 3}},
		{Fold, 2, vox.Dims{2, 2, 3}},
		{Partial, 2, vox.Dims{3, 2, 4}},
		{Truncate, 5, vox.Dims{1, 1, 1}},
		{Partial, 5, vox.Dims{1, 1, 2}},
		{Fold, 3, vox.Dims{1, 1, 2}},
	}
	for _, tc := range tests {
		got, err := OutputSize(size, tc.k, tc.boundary)
		if err != nil {
			t.Fatalf("output size: %v\n", err)
		}
		if !got.Equals(tc.expected) {
			t.Errorf("%s with k=%d: expected %s, got %s\n", tc.boundary, tc.k, tc.expected, got)
		}
		g := randomGrid(t, size, 5, int64(tc.k))
		out, err := Coarsen(g, tc.k, Config{Boundary: tc.boundary})
		if err != nil {
			t.Fatalf("coarsen %s: %v\n", tc.boundary, err)
		}
		if !out.Size.Equals(tc.expected) || len(out.Labels) != tc.expected.Prod() {
			t.Errorf("%s with k=%d: grid %s with %d labels\n", tc.boundary, tc.k, out.Size, len(out.Labels))
		}
	}
}

func TestBoundaryContent(t *testing.T) {
	// 5 x 1 x 1 row: blocks of 2 are [1 1] [2 2] and a trailing [3].
	g := makeGrid(t, vox.Dims{5, 1, 1}, []int32{1, 1, 2, 2, 3})

	out, err := Coarsen(g, 2, Config{Boundary: Truncate})
	if err != nil {
		t.Fatalf("truncate: %v\n", err)
	}
	checkLabels(t, "truncate", []int32{1, 2}, out.Labels)

	out, err = Coarsen(g, 2, Config{Boundary: Partial})
	if err != nil {
		t.Fatalf("partial: %v\n", err)
	}
	checkLabels(t, "partial", []int32{1, 2, 3}, out.Labels)

	// folding the trailing 3 into the last block gives [2 3 3] with mode 3.
	g = makeGrid(t, vox.Dims{5, 1, 1}, []int32{1, 1, 2, 3, 3})
	out, err = Coarsen(g, 2, Config{Boundary: Fold})
	if err != nil {
		t.Fatalf("fold: %v\n", err)
	}
	checkLabels(t, "fold", []int32{1, 3}, out.Labels)
	out, err = Coarsen(g, 2, Config{Boundary: Truncate})
	if err != nil {
		t.Fatalf("truncate: %v\n", err)
	}
	checkLabels(t, "truncate without fold", []int32{1, 2}, out.Labels)
}

// bruteForce computes a coarsening voxel-by-voxel for comparison.
func bruteForce(g *vox.Grid, k int, cfg Config) []int32 {
	outSize, _ := OutputSize(g.Size, k, cfg.Boundary)
	var out []int32
	for z := 0; z < outSize[2]; z++ {
		zlo, zhi := cfg.Boundary.span(z, g.Size[2], outSize[2], k)
		for y := 0; y < outSize[1]; y++ {
			ylo, yhi := cfg.Boundary.span(y, g.Size[1], outSize[1], k)
			for x := 0; x < outSize[0]; x++ {
				xlo, xhi := cfg.Boundary.span(x, g.Size[0], outSize[0], k)
				var block []int32
				for iz := zlo; iz < zhi; iz++ {
					for iy := ylo; iy < yhi; iy++ {
						for ix := xlo; ix < xhi; ix++ {
							block = append(block, g.Value(ix, iy, iz))
						}
					}
				}
				out = append(out, cfg.Rule.reduce(block, cfg.Background))
			}
		}
	}
	return out
}

func TestMatchesBruteForce(t *testing.T) {
	g := randomGrid(t, vox.Dims{13, 9, 11}, 4, 7)
	for _, b := range Boundaries {
		for _, r := range Rules {
			for _, k := range []int{2, 3, 4} {
				cfg := Config{Rule: r, Boundary: b}
				out, err := Coarsen(g, k, cfg)
				if err != nil {
					t.Fatalf("coarsen: %v\n", err)
				}
				checkLabels(t, cfg.String(), bruteForce(g, k, cfg), out.Labels)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	g := randomGrid(t, vox.Dims{32, 24, 40}, 6, 42)
	cfg := Config{Rule: ModeNonzero, Workers: 1}
	reference, err := Coarsen(g, 3, cfg)
	if err != nil {
		t.Fatalf("coarsen: %v\n", err)
	}
	for _, workers := range []int{1, 2, 4, 16, 0} {
		cfg.Workers = workers
		for trial := 0; trial < 2; trial++ {
			out, err := Coarsen(g, 3, cfg)
			if err != nil {
				t.Fatalf("coarsen: %v\n", err)
			}
			checkLabels(t, "determinism", reference.Labels, out.Labels)
		}
	}
}

func TestInputUnmodified(t *testing.T) {
	g := randomGrid(t, vox.Dims{8, 8, 8}, 5, 9)
	orig := append([]int32{}, g.Labels...)
	if _, err := Coarsen(g, 2, Config{}); err != nil {
		t.Fatalf("coarsen: %v\n", err)
	}
	checkLabels(t, "input after coarsen", orig, g.Labels)
}

func TestPyramid(t *testing.T) {
	g := randomGrid(t, vox.Dims{16, 16, 8}, 3, 5)
	levels, err := Pyramid(context.Background(), g, 2, 10, Config{})
	if err != nil {
		t.Fatalf("pyramid: %v\n", err)
	}
	expected := []vox.Dims{{8, 8, 4}, {4, 4, 2}, {2, 2, 1}, {1, 1, 1}}
	if len(levels) != len(expected) {
		t.Fatalf("expected %d levels, got %d\n", len(expected), len(levels))
	}
	for i, size := range expected {
		if !levels[i].Size.Equals(size) {
			t.Errorf("level %d: expected %s, got %s\n", i+1, size, levels[i].Size)
		}
	}
	second, err := Coarsen(levels[0], 2, Config{})
	if err != nil {
		t.Fatalf("coarsen: %v\n", err)
	}
	checkLabels(t, "pyramid level 2", second.Labels, levels[1].Labels)

	levels, err = Pyramid(context.Background(), g, 2, 2, Config{})
	if err != nil || len(levels) != 2 {
		t.Errorf("expected 2 levels, got %d (%v)\n", len(levels), err)
	}
}

func TestCanceled(t *testing.T) {
	g := randomGrid(t, vox.Dims{16, 16, 16}, 3, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CoarsenContext(ctx, g, 2, Config{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled error, got %v\n", err)
	}
}

func TestParse(t *testing.T) {
	for _, r := range Rules {
		got, err := ParseRule(r.String())
		if err != nil || got != r {
			t.Errorf("can't parse rule %q: %v\n", r, err)
		}
	}
	for _, b := range Boundaries {
		got, err := ParseBoundary(b.String())
		if err != nil || got != b {
			t.Errorf("can't parse boundary %q: %v\n", b, err)
		}
	}
	if _, err := ParseRule("median"); err == nil {
		t.Errorf("expected error on unknown rule\n")
	}
	if _, err := ParseBoundary("wrap"); err == nil {
		t.Errorf("expected error on unknown boundary\n")
	}
	if _, err := Coarsen(randomGrid(t, vox.Dims{2, 2, 2}, 2, 1), 2, Config{Rule: Rule(9)}); err == nil {
		t.Errorf("expected error on bad rule\n")
	}
}
