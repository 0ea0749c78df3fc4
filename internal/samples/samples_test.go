package samples

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/viraflow/internal/config"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("@r\nACGT\n+\nIIII\n"), 0o644))
	}
}

func TestKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"S1_R1.fastq.gz", "S1"},
		{"S1_R2.fq.gz", "S1"},
		{"barcode01_pass.fastq", "barcode01"},
		{"lonely.fq", "lonely"},
		{"a_b_c.fastq.gz", "a"},
	}
	for _, tc := range cases {
		got, err := Key(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestKeyErrors(t *testing.T) {
	for _, in := range []string{"notes.txt", "reads.bam", ".fastq.gz", "_R1.fastq.gz"} {
		_, err := Key(in)
		assert.Error(t, err, in)
	}
}

func TestDiscoverSingle(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "S2_pass.fastq.gz", "S1_pass.fastq.gz", "S3.fq")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	cfg := &config.Run{Mode: config.ModeONT, ReadsFolder: dir}
	got, err := Discover(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "S1", got[0].Key)
	assert.Equal(t, "S2", got[1].Key)
	assert.Equal(t, "S3", got[2].Key)
	assert.Equal(t, filepath.Join(dir, "S1_pass.fastq.gz"), got[0].Reads1)
	assert.Empty(t, got[0].Reads2)
}

func TestDiscoverSingleDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "S1_a.fastq", "S1_b.fastq")

	cfg := &config.Run{Mode: config.ModeONT, ReadsFolder: dir}
	_, err := Discover(context.Background(), cfg)
	assert.ErrorContains(t, err, "appears twice")
}

func TestDiscoverPaired(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "S1_R1.fastq.gz", "S1_R2.fastq.gz", "S2_1.fq.gz", "S2_2.fq.gz")

	cfg := &config.Run{Mode: config.ModePE, ReadsFolder: dir}
	got, err := Discover(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].Key)
	assert.Equal(t, filepath.Join(dir, "S1_R1.fastq.gz"), got[0].Reads1)
	assert.Equal(t, filepath.Join(dir, "S1_R2.fastq.gz"), got[0].Reads2)
	assert.Equal(t, "S2", got[1].Key)
	assert.Equal(t, filepath.Join(dir, "S2_1.fq.gz"), got[1].Reads1)
}

func TestDiscoverPairedErrors(t *testing.T) {
	t.Run("missing mate marker", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "S1_pass.fastq.gz")
		cfg := &config.Run{Mode: config.ModePE, ReadsFolder: dir}
		_, err := Discover(context.Background(), cfg)
		assert.ErrorContains(t, err, "mate marker")
	})

	t.Run("unpaired sample", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "S1_R1.fastq.gz")
		cfg := &config.Run{Mode: config.ModePE, ReadsFolder: dir}
		_, err := Discover(context.Background(), cfg)
		assert.ErrorContains(t, err, "missing a mate")
	})

	t.Run("duplicate mate", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "S1_R1.fastq.gz", "S1_1.fq.gz", "S1_R2.fastq.gz")
		cfg := &config.Run{Mode: config.ModePE, ReadsFolder: dir}
		_, err := Discover(context.Background(), cfg)
		assert.ErrorContains(t, err, "two R1 files")
	})
}

func TestDiscoverNonconformingNameFails(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "_R1.fastq.gz")
	cfg := &config.Run{Mode: config.ModeONT, ReadsFolder: dir}
	_, err := Discover(context.Background(), cfg)
	assert.ErrorContains(t, err, "empty sample prefix")
}
