package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spacematrix/internal/model"
)

func TestCompute(t *testing.T) {
	nan := model.Missing
	tests := []struct {
		name        string
		f, b, a     float64
		fsi, gsi, l float64
		osr         float64
		flag        int
	}{
		{"scenario", 1800, 600, 1000, 1.8, 0.6, 3.0, 0.4 / 1.8, DQOK},
		{"zero area", 100, 50, 0, nan, nan, 2.0, nan, DQOK},
		{"no footprint", 500, 0, 1000, 0.5, 0, nan, 2.0, DQNoFootprint},
		{"no built area", 0, 400, 1000, 0, 0.4, 0, nan, DQNoBuiltArea},
		{"nothing", 0, 0, 1000, 0, 0, nan, nan, DQNoData},
		{"gsi above one", 100, 1200, 1000, 0.1, nan, 100.0 / 1200, nan, DQOK},
		{"negative floor area", -10, 100, 1000, nan, 0.1, -0.1, nan, DQNoBuiltArea},
		{"missing area", 100, 100, nan, nan, nan, 1, nan, DQOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.f, tt.b, tt.a)
			assertValue(t, tt.fsi, got.FSI, "FSI")
			assertValue(t, tt.gsi, got.GSI, "GSI")
			assertValue(t, tt.l, got.L, "L")
			assertValue(t, tt.osr, got.OSR, "OSR")
			assert.Equal(t, tt.flag, got.DQFlag)
		})
	}
}

func assertValue(t *testing.T, want, got float64, name string) {
	t.Helper()
	if model.IsMissing(want) {
		assert.True(t, model.IsMissing(got), "%s: want missing, got %v", name, got)
		return
	}
	assert.InDelta(t, want, got, 1e-9, name)
}

func TestDQFlag(t *testing.T) {
	assert.Equal(t, DQNoData, DQFlag(model.Missing, model.Missing))
	assert.Equal(t, DQNoBuiltArea, DQFlag(model.Missing, 5))
	assert.Equal(t, DQNoFootprint, DQFlag(5, 0))
	assert.Equal(t, DQOK, DQFlag(5, 5))
}

func TestApplyGSIAlwaysInRange(t *testing.T) {
	var blocks []*model.Block
	for i, b := range []float64{0, 10, 999, 1000, 1001} {
		blk := model.NewBlock(i, "", nil, 1000, model.Record{})
		blk.Footprint.Area = b
		blk.Cadastre.BuiltArea = 100
		blocks = append(blocks, blk)
	}
	Apply(blocks)
	for _, b := range blocks {
		if !model.IsMissing(b.Indices.GSI) {
			assert.GreaterOrEqual(t, b.Indices.GSI, 0.0)
			assert.LessOrEqual(t, b.Indices.GSI, 1.0)
		}
	}
	assert.True(t, model.IsMissing(blocks[4].Indices.GSI))
	assert.InDelta(t, 1.0, blocks[3].Indices.GSI, 1e-12)
}

func TestLevelsDiff(t *testing.T) {
	b := model.NewBlock(0, "", nil, 1000, model.Record{})
	assert.True(t, model.IsMissing(LevelsDiff(b)))

	b.Indices = Compute(1800, 600, 1000)
	assert.True(t, model.IsMissing(LevelsDiff(b)))

	b.Cadastre.Levels = 2.5
	assert.InDelta(t, 0.5, LevelsDiff(b), 1e-9)
}

func TestQC(t *testing.T) {
	mk := func(mun string, f, b float64, props int) *model.Block {
		blk := model.NewBlock(0, "", nil, 1000, model.Record{})
		blk.Municipality = mun
		blk.Cadastre.BuiltArea = f
		blk.Cadastre.PropertyCount = props
		blk.Footprint.Area = b
		return blk
	}
	blocks := []*model.Block{
		mk("002", 0, 100, 0),
		mk("002", 500, 100, 3),
		mk("007", 0, 100, 0),
		mk("007", 0, 200, 0),
		mk("007", 300, 0, 2),
		mk("010", 0, 0, 0),
	}

	rows := QC(blocks)
	require.Len(t, rows, 3)

	assert.Equal(t, "007", rows[0].Municipality)
	assert.Equal(t, 2, rows[0].Flag1)
	assert.Equal(t, 1, rows[0].Flag2)
	assert.Equal(t, 3, rows[0].Total)
	assert.Equal(t, 2, rows[0].PropsTotal)
	assert.InDelta(t, 300.0, rows[0].FTotal, 1e-9)
	assert.InDelta(t, 300.0, rows[0].BTotal, 1e-9)
	assert.InDelta(t, 200.0/3, rows[0].Pct1, 1e-9)

	assert.Equal(t, "002", rows[1].Municipality)
	assert.Equal(t, 1, rows[1].Flag1)
	assert.InDelta(t, 50.0, rows[1].Pct1, 1e-9)

	assert.Equal(t, "010", rows[2].Municipality)
	assert.Equal(t, 1, rows[2].Flag3)
	assert.InDelta(t, 100.0, rows[2].Pct3, 1e-9)
	assert.Zero(t, rows[2].Pct1)
}
