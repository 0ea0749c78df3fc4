// Package samples discovers sequencing read files and derives the sample
// keys that correlate records across the run's channels.
//
// Naming convention: sample identity is the filename prefix before the
// first underscore. Paired-end mates are marked `_R1`/`_R2` or `_1`/`_2`
// immediately before the extension; single-end (long-read) files are any
// `*.fastq(.gz)` / `*.fq(.gz)`. Files that do not conform are a hard
// discovery error rather than being silently mis-keyed.
package samples

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/ctxlog"
)

// Sample is one discovered input unit. Reads2 is empty in single mode.
type Sample struct {
	Key    string
	Reads1 string
	Reads2 string
}

// fastqExts are the accepted read file extensions, longest first.
var fastqExts = []string{".fastq.gz", ".fq.gz", ".fastq", ".fq"}

// stem strips a recognised fastq extension, or returns ok=false.
func stem(name string) (string, bool) {
	for _, ext := range fastqExts {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return "", false
}

// Key derives the sample key from a read filename. It fails rather than
// silently truncating when the name does not carry a usable prefix.
func Key(filename string) (string, error) {
	base := filepath.Base(filename)
	s, ok := stem(base)
	if !ok {
		return "", fmt.Errorf("%q is not a fastq file (expected one of %v)", base, fastqExts)
	}
	if s == "" {
		return "", fmt.Errorf("%q has no filename stem", base)
	}
	if i := strings.Index(s, "_"); i > 0 {
		return s[:i], nil
	}
	if strings.HasPrefix(s, "_") {
		return "", fmt.Errorf("%q has an empty sample prefix", base)
	}
	// No underscore: the whole stem is the key.
	return s, nil
}

// mate returns 1 or 2 when the stem ends in a paired-end mate marker.
func mate(s string) int {
	switch {
	case strings.HasSuffix(s, "_R1"), strings.HasSuffix(s, "_1"):
		return 1
	case strings.HasSuffix(s, "_R2"), strings.HasSuffix(s, "_2"):
		return 2
	}
	return 0
}

// Discover scans the reads folder (non-recursive) and returns the sample
// set sorted lexicographically by key — the stable order that dev-mode
// truncation depends on.
func Discover(ctx context.Context, cfg *config.Run) ([]Sample, error) {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(cfg.ReadsFolder)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cfg.ReadsFolder, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := stem(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	logger.Debug("Read files discovered.", "folder", cfg.ReadsFolder, "count", len(names))

	if cfg.Mode == config.ModePE {
		return pairUp(cfg.ReadsFolder, names)
	}
	return single(cfg.ReadsFolder, names)
}

// single maps every conforming file to one sample.
func single(folder string, names []string) ([]Sample, error) {
	out := make([]Sample, 0, len(names))
	seen := map[string]string{}
	for _, name := range names {
		key, err := Key(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("sample %q appears twice: %s and %s", key, prev, name)
		}
		seen[key] = name
		out = append(out, Sample{Key: key, Reads1: filepath.Join(folder, name)})
	}
	sortSamples(out)
	return out, nil
}

// pairUp matches R1/R2 mates per sample key.
func pairUp(folder string, names []string) ([]Sample, error) {
	type pair struct{ r1, r2 string }
	pairs := map[string]*pair{}

	for _, name := range names {
		key, err := Key(name)
		if err != nil {
			return nil, err
		}
		s, _ := stem(name)
		m := mate(s)
		if m == 0 {
			return nil, fmt.Errorf("%q has no _R1/_R2 (or _1/_2) mate marker; required in paired-end mode", name)
		}
		p := pairs[key]
		if p == nil {
			p = &pair{}
			pairs[key] = p
		}
		full := filepath.Join(folder, name)
		if m == 1 {
			if p.r1 != "" {
				return nil, fmt.Errorf("sample %q has two R1 files: %s and %s", key, p.r1, full)
			}
			p.r1 = full
		} else {
			if p.r2 != "" {
				return nil, fmt.Errorf("sample %q has two R2 files: %s and %s", key, p.r2, full)
			}
			p.r2 = full
		}
	}

	out := make([]Sample, 0, len(pairs))
	for key, p := range pairs {
		if p.r1 == "" || p.r2 == "" {
			return nil, fmt.Errorf("sample %q is missing a mate file (R1=%q R2=%q)", key, p.r1, p.r2)
		}
		out = append(out, Sample{Key: key, Reads1: p.r1, Reads2: p.r2})
	}
	sortSamples(out)
	return out, nil
}

func sortSamples(s []Sample) {
	sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key })
}
