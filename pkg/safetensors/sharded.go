package safetensors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/samsartor/checkpointui/pkg/debug"
	"github.com/samsartor/checkpointui/pkg/model"
)

// shardOpenLimit caps how many shard files are opened concurrently.
const shardOpenLimit = 8

// shardIndex is the layout of model.safetensors.index.json.
type shardIndex struct {
	Metadata  map[string]any    `json:"metadata"`
	WeightMap map[string]string `json:"weight_map"`
}

// OpenSharded loads every shard referenced by the index file. Shards are
// opened concurrently; each one re-parses its own header, which is where
// the authoritative per-tensor offsets live.
func OpenSharded(indexPath string) (*Source, error) {
	defer debug.LogEnterExit("safetensors.OpenSharded")()

	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, &model.DataError{Op: "open", Err: err}
	}
	var index shardIndex
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, &model.DataError{Op: "open", Err: err}
	}
	if len(index.WeightMap) == 0 {
		return nil, &model.DataError{Op: "open", Err: fmt.Errorf("%s has an empty weight map", indexPath)}
	}

	shardNames := make([]string, 0)
	seen := make(map[string]bool)
	for _, shard := range index.WeightMap {
		if !seen[shard] {
			seen[shard] = true
			shardNames = append(shardNames, shard)
		}
	}
	sort.Strings(shardNames)

	dir := filepath.Dir(indexPath)
	files := make(map[string]*File, len(shardNames))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(shardOpenLimit)
	for _, shard := range shardNames {
		shard := shard
		g.Go(func() error {
			f, err := OpenFile(filepath.Join(dir, shard))
			if err != nil {
				return err
			}
			mu.Lock()
			files[shard] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, err
	}

	src := &Source{
		display: filepath.Base(indexPath),
		files:   files,
		meta:    index.Metadata,
	}
	for _, shard := range shardNames {
		src.tensors = append(src.tensors, files[shard].tensors...)
	}
	sort.Slice(src.tensors, func(i, j int) bool {
		return model.NaturalLess(src.tensors[i].Name, src.tensors[j].Name)
	})
	return src, nil
}
