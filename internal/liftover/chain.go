// Package liftover converts result stores from hg18 or hg19 coordinates to
// hg38 using UCSC chain files.
package liftover

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Coordinate is a 0-based position on a target chromosome.
type Coordinate struct {
	Chrom  string
	Pos    int64
	Strand byte
}

// Mapper maps 0-based source coordinates. ok is false when the chromosome
// is absent from the mapping; hits is empty when no block covers pos.
type Mapper interface {
	MapCoordinate(chrom string, pos int64) (hits []Coordinate, ok bool)
}

// binShift sets the bin width of the block index to 64kb.
const binShift = 16

// block is one ungapped alignment between source and target.
type block struct {
	tStart, tEnd int64
	qStart       int64
	qChrom       string
	qSize        int64
	qStrand      byte
}

// ChainMap is an in-memory index of a chain file.
type ChainMap struct {
	blocks map[string][]block
	bins   map[string]map[int64][]int
}

// LoadChainFile reads a chain file, transparently decompressing names
// ending in ".gz".
func LoadChainFile(path string) (*ChainMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open chain file %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	cm, err := ParseChain(r)
	if err != nil {
		return nil, fmt.Errorf("parse chain file %s: %w", path, err)
	}
	return cm, nil
}

// chainHeader holds the fields of a "chain" line the index needs.
type chainHeader struct {
	tName   string
	tStart  int64
	qName   string
	qSize   int64
	qStrand byte
	qStart  int64
}

// ParseChain reads UCSC chain format:
//
//	chain score tName tSize tStrand tStart tEnd qName qSize qStrand qStart qEnd id
//	size dt dq
//	...
//	size
func ParseChain(r io.Reader) (*ChainMap, error) {
	cm := &ChainMap{
		blocks: make(map[string][]block),
		bins:   make(map[string]map[int64][]int),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var cur *chainHeader
	var tPos, qPos int64
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)

		if fields[0] == "chain" {
			h, err := parseHeader(fields)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur = h
			tPos, qPos = h.tStart, h.qStart
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: alignment data before chain header", line)
		}

		nums, err := parseInts(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch len(nums) {
		case 1, 3:
		default:
			return nil, fmt.Errorf("line %d: expected 1 or 3 fields, got %d", line, len(nums))
		}

		size := nums[0]
		cm.add(cur.tName, block{
			tStart:  tPos,
			tEnd:    tPos + size,
			qStart:  qPos,
			qChrom:  cur.qName,
			qSize:   cur.qSize,
			qStrand: cur.qStrand,
		})
		tPos += size
		qPos += size

		if len(nums) == 1 {
			cur = nil
			continue
		}
		tPos += nums[1]
		qPos += nums[2]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cm, nil
}

func parseHeader(fields []string) (*chainHeader, error) {
	if len(fields) < 12 {
		return nil, fmt.Errorf("chain header has %d fields, want at least 12", len(fields))
	}
	tStart, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chain tStart: %w", err)
	}
	qSize, err := strconv.ParseInt(fields[8], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chain qSize: %w", err)
	}
	qStart, err := strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chain qStart: %w", err)
	}
	if fields[4] != "+" {
		return nil, fmt.Errorf("chain tStrand %q not supported", fields[4])
	}
	if fields[9] != "+" && fields[9] != "-" {
		return nil, fmt.Errorf("chain qStrand %q invalid", fields[9])
	}
	return &chainHeader{
		tName:   fields[2],
		tStart:  tStart,
		qName:   fields[7],
		qSize:   qSize,
		qStrand: fields[9][0],
		qStart:  qStart,
	}, nil
}

func parseInts(fields []string) ([]int64, error) {
	nums := make([]int64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("alignment field %q: %w", f, err)
		}
		nums[i] = n
	}
	return nums, nil
}

func (cm *ChainMap) add(chrom string, b block) {
	if b.tEnd <= b.tStart {
		return
	}
	idx := len(cm.blocks[chrom])
	cm.blocks[chrom] = append(cm.blocks[chrom], b)

	bins := cm.bins[chrom]
	if bins == nil {
		bins = make(map[int64][]int)
		cm.bins[chrom] = bins
	}
	for bin := b.tStart >> binShift; bin <= (b.tEnd-1)>>binShift; bin++ {
		bins[bin] = append(bins[bin], idx)
	}
}

// Chromosomes reports how many source chromosomes the map covers.
func (cm *ChainMap) Chromosomes() int {
	return len(cm.blocks)
}

// MapCoordinate maps a 0-based position. Minus-strand targets are reported
// in forward-strand coordinates.
func (cm *ChainMap) MapCoordinate(chrom string, pos int64) ([]Coordinate, bool) {
	bins, ok := cm.bins[chrom]
	if !ok {
		return nil, false
	}
	blocks := cm.blocks[chrom]

	var hits []Coordinate
	for _, i := range bins[pos>>binShift] {
		b := blocks[i]
		if pos < b.tStart || pos >= b.tEnd {
			continue
		}
		q := b.qStart + (pos - b.tStart)
		if b.qStrand == '-' {
			q = b.qSize - 1 - q
		}
		hits = append(hits, Coordinate{Chrom: b.qChrom, Pos: q, Strand: b.qStrand})
	}
	return hits, true
}
