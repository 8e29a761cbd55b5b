// Command filterdb-convert packs a text filter list and its referenced WAV
// files into a single binary filter database, the format FilterStorage
// reads with -filter-source=db.
//
// Usage:
//
//	filterdb-convert [options] <filter-list> <output-file>
//
// Options:
//
//	-verbose       Show progress and details
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"binsim-go/internal/filterdb"
	"binsim-go/internal/wavefile"
)

var verbose = flag.Bool("verbose", false, "Show progress and details")

const keyLen = filterdb.KeyLen

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <filter-list> <output-file>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Packs a text filter list (the same format FilterStorage.LoadFromFileList\n")
		fmt.Fprintf(os.Stderr, "reads) into a binary filter database file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s brirs/filter_list.txt brirs/filters.bfdb\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(listPath, outputFile string) error {
	entries, err := parseFilterList(listPath)
	if err != nil {
		return fmt.Errorf("failed to parse filter list: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("filter list has no entries")
	}

	if *verbose {
		fmt.Printf("Found %d filter list entries\n", len(entries))
	}

	baseDir := filepath.Dir(listPath)

	records := make([]*filterdb.Record, 0, len(entries))
	for i, e := range entries {
		rec, err := convertEntry(e, baseDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", e.path, err)
			continue
		}
		if *verbose {
			fmt.Printf("[%d/%d] %s %s: %d samples\n", i+1, len(entries), e.stage, filepath.Base(e.path), rec.Length())
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return errors.New("no files were successfully converted")
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if err := filterdb.WriteDatabase(outFile, records); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}

	if info, err := outFile.Stat(); err == nil {
		fmt.Printf("Wrote %s: %d records, %.2f MB\n", outputFile, len(records), float64(info.Size())/(1024*1024))
	}

	return nil
}

// listEntry is one non-comment, non-blank line of a filter list file:
//
//	DS 0 0 40 1 1 0 0 0 0 0 0 0 0 0 0 brir/ref_a01.wav
//	SD 0 0 0 0 0 0 0 0 0 dir/src_000.wav
//	HP hp/headphone.wav
type listEntry struct {
	stage string
	key   [keyLen]int32
	path  string
}

func parseFilterList(path string) ([]listEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []listEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %q", lineNo, line)
		}

		stage := fields[0]
		path := fields[len(fields)-1]
		values := fields[1 : len(fields)-1]

		var key [keyLen]int32
		for i, v := range values {
			if i >= keyLen {
				break
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid integer %q: %w", lineNo, v, err)
			}
			key[i] = int32(n)
		}

		entries = append(entries, listEntry{stage: stage, key: key, path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func convertEntry(e listEntry, baseDir string) (*filterdb.Record, error) {
	path := e.path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wav, err := wavefile.Parse(f)
	if err != nil {
		return nil, err
	}

	left, right := wav.Data[0], wav.Data[0]
	if len(wav.Data) > 1 {
		right = wav.Data[1]
	}

	return &filterdb.Record{
		Stage:      e.stage,
		Key:        e.key,
		SampleRate: float64(wav.SampleRate),
		Left:       left,
		Right:      right,
	}, nil
}
