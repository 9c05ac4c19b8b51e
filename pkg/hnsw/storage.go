package hnsw

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

// Snapshot format: a single LF-terminated text file of comma-separated
// fields, no quoting (labels must not contain ',' or '\n').
//
//	header:     nodes_count,max_id,entry_point_id,D,M,M0,ef_construction,ef_search,mL,keep_pruned
//	node line:  id,name,v[0],...,v[D-1],layers_count        (nodes_count of them)
//	edge line:  node_id,layer,degree,neighbour_id...        (one per node+layer, any order)

// Save serializes the graph to path. Nodes are collected by walking
// layer-0 edges from the entry point, which insert-time connectivity
// guarantees reaches everything.
func (idx *Index) Save(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty snapshot path", ErrBadSetting)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSnapshotIO, path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	nodes := idx.collectNodes()

	entryID := -1
	if entry := idx.getEntryPoint(); entry != nil {
		entryID = entry.id
	}

	fmt.Fprintf(w, "%d,%d,%d,%d,%d,%d,%d,%d,%s,%d\n",
		len(nodes), idx.Size()-1, entryID, idx.descriptorSize,
		idx.m, idx.m0, idx.efConstruction, idx.efSearch,
		formatFloat(idx.mL), boolToInt(idx.keepPruned))

	for _, node := range nodes {
		w.WriteString(strconv.Itoa(node.id))
		w.WriteByte(',')
		w.WriteString(node.name)

		for _, v := range node.descriptor {
			w.WriteByte(',')
			w.WriteString(formatFloat(v))
		}

		w.WriteByte(',')
		w.WriteString(strconv.Itoa(node.topLayer + 1))
		w.WriteByte('\n')
	}

	for _, node := range nodes {
		for layer := 0; layer <= node.topLayer; layer++ {
			neighbours := node.neighbours(layer)

			fmt.Fprintf(w, "%d,%d,%d", node.id, layer, len(neighbours))
			for _, neighbour := range neighbours {
				w.WriteByte(',')
				w.WriteString(strconv.Itoa(neighbour.id))
			}
			w.WriteByte('\n')
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSnapshotIO, path, err)
	}

	return nil
}

// NewFromDump restores an index from a snapshot written by Save. The
// metric is not stored in the file and must be supplied again; nil means
// Euclidean.
func NewFromDump(path string, metric DistanceFunc) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty snapshot path", ErrBadSetting)
	}
	if metric == nil {
		metric = Euclidean
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSnapshotIO, path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	header, err := readLine(scanner, "header")
	if err != nil {
		return nil, err
	}

	fields := strings.Split(header, ",")
	if len(fields) != 10 {
		return nil, fmt.Errorf("%w: header has %d fields, want 10", ErrMalformedDump, len(fields))
	}

	nodesCount, err := parseInt(fields[0], "nodes_count")
	if err != nil {
		return nil, err
	}
	maxID, err := parseInt(fields[1], "max_id")
	if err != nil {
		return nil, err
	}
	entryID, err := parseInt(fields[2], "entry_point_id")
	if err != nil {
		return nil, err
	}
	descriptorSize, err := parseInt(fields[3], "D")
	if err != nil {
		return nil, err
	}
	m, err := parseInt(fields[4], "M")
	if err != nil {
		return nil, err
	}
	m0, err := parseInt(fields[5], "M0")
	if err != nil {
		return nil, err
	}
	efConstruction, err := parseInt(fields[6], "ef_construction")
	if err != nil {
		return nil, err
	}
	efSearch, err := parseInt(fields[7], "ef_search")
	if err != nil {
		return nil, err
	}
	mL, err := strconv.ParseFloat(fields[8], 64)
	if err != nil || math.IsNaN(mL) || mL < 0 {
		return nil, fmt.Errorf("%w: bad mL %q", ErrMalformedDump, fields[8])
	}
	keepPruned, err := strconv.ParseBool(fields[9])
	if err != nil {
		return nil, fmt.Errorf("%w: bad keep_pruned %q", ErrMalformedDump, fields[9])
	}

	if descriptorSize <= 0 || m <= 0 || m0 <= 0 || efConstruction <= 0 || efSearch <= 0 {
		return nil, fmt.Errorf("%w: non-positive setting in header", ErrMalformedDump)
	}
	if nodesCount < 0 || nodesCount > maxID+1 {
		return nil, fmt.Errorf("%w: nodes_count %d out of range for max_id %d",
			ErrMalformedDump, nodesCount, maxID)
	}

	idx := &Index{
		descriptorSize: descriptorSize,
		metric:         metric,
		m:              m,
		m0:             m0,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		mL:             mL,
		keepPruned:     keepPruned,
		maxID:          maxID,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	// Slots may stay empty if the dump carried id gaps; production inserts
	// do not create any.
	table := make([]*Node, maxID+1)

	for i := 0; i < nodesCount; i++ {
		line, err := readLine(scanner, "node line")
		if err != nil {
			return nil, err
		}

		fields := strings.Split(line, ",")
		if len(fields) != descriptorSize+3 {
			return nil, fmt.Errorf("%w: node line has %d fields, want %d",
				ErrMalformedDump, len(fields), descriptorSize+3)
		}

		id, err := parseInt(fields[0], "node id")
		if err != nil {
			return nil, err
		}
		if id < 0 || id > maxID {
			return nil, fmt.Errorf("%w: node id %d out of range", ErrMalformedDump, id)
		}
		if table[id] != nil {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrMalformedDump, id)
		}

		name := fields[1]

		descriptor := make([]float64, descriptorSize)
		for j := 0; j < descriptorSize; j++ {
			v, err := strconv.ParseFloat(fields[2+j], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad descriptor value %q", ErrMalformedDump, fields[2+j])
			}
			descriptor[j] = v
		}

		layersCount, err := parseInt(fields[descriptorSize+2], "layers_count")
		if err != nil {
			return nil, err
		}
		if layersCount < 1 {
			return nil, fmt.Errorf("%w: node %d has %d layers", ErrMalformedDump, id, layersCount)
		}

		table[id] = newNode(id, name, descriptor, layersCount, m+1, m0+1)
	}

	if entryID >= 0 {
		if entryID > maxID || table[entryID] == nil {
			return nil, fmt.Errorf("%w: entry point id %d not in node table", ErrMalformedDump, entryID)
		}
		idx.entryPoint = table[entryID]
	} else if nodesCount > 0 {
		return nil, fmt.Errorf("%w: %d nodes but no entry point", ErrMalformedDump, nodesCount)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: edge line has %d fields, want at least 3",
				ErrMalformedDump, len(fields))
		}

		nodeID, err := parseInt(fields[0], "edge node id")
		if err != nil {
			return nil, err
		}
		if nodeID < 0 || nodeID > maxID || table[nodeID] == nil {
			return nil, fmt.Errorf("%w: edge line for unknown node %d", ErrMalformedDump, nodeID)
		}
		node := table[nodeID]

		layer, err := parseInt(fields[1], "edge layer")
		if err != nil {
			return nil, err
		}
		if layer < 0 || layer > node.topLayer {
			return nil, fmt.Errorf("%w: node %d has no layer %d", ErrMalformedDump, nodeID, layer)
		}

		degree, err := parseInt(fields[2], "edge degree")
		if err != nil {
			return nil, err
		}
		if degree != len(fields)-3 {
			return nil, fmt.Errorf("%w: edge line for node %d declares degree %d but carries %d ids",
				ErrMalformedDump, nodeID, degree, len(fields)-3)
		}

		for _, field := range fields[3:] {
			neighbourID, err := parseInt(field, "neighbour id")
			if err != nil {
				return nil, err
			}
			if neighbourID < 0 || neighbourID > maxID || table[neighbourID] == nil {
				return nil, fmt.Errorf("%w: node %d references unknown neighbour %d",
					ErrMalformedDump, nodeID, neighbourID)
			}
			node.layers[layer] = append(node.layers[layer], table[neighbourID])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSnapshotIO, path, err)
	}

	return idx, nil
}

func readLine(scanner *bufio.Scanner, what string) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrSnapshotIO, err)
		}
		return "", fmt.Errorf("%w: unexpected end of file reading %s", ErrMalformedDump, what)
	}
	return scanner.Text(), nil
}

func parseInt(field, what string) (int, error) {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrMalformedDump, what, field)
	}
	return v, nil
}

// formatFloat round-trips float64 values exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
