package workload_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/workload"
)

func TestBuildBatch(t *testing.T) {
	items := workload.NewGenerator(42).BuildBatch(100, 80, 20)
	require.Len(t, items, 100)

	const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for _, it := range items {
		assert.Len(t, it.Key, 80)
		assert.Len(t, it.Value, 20)
		assert.Empty(t, strings.Trim(it.Key, alphanumeric), "key %q is not alphanumeric", it.Key)
	}
}

func TestBuildBatch_Reproducible(t *testing.T) {
	a := workload.NewGenerator(7).BuildBatch(10, 16, 8)
	b := workload.NewGenerator(7).BuildBatch(10, 16, 8)
	assert.Equal(t, a, b)

	c := workload.NewGenerator(8).BuildBatch(10, 16, 8)
	assert.NotEqual(t, a, c)
}

func TestBuildRecords(t *testing.T) {
	items, err := workload.NewGenerator(1).BuildRecords("rec:", 5, 32)
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, it := range items {
		var rec workload.Record
		require.NoError(t, batchkv.DecodeValue(it.Value, &rec))
		assert.Equal(t, uint64(i), rec.Seq)
		assert.Len(t, rec.Payload, 32)
		assert.Equal(t, rec.Key("rec:"), it.Key)
		assert.Equal(t, 4, int(rec.ID.Version()))
	}
}

func TestSequentialKeys(t *testing.T) {
	items := workload.SequentialKeys("k:", 3, []byte("v"))
	assert.Equal(t, []string{"k:0", "k:1", "k:2"}, batchkv.Keys(items))
}
