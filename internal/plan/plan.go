// Package plan is the Plan Builder (spec.md §4.4): groups hashed File
// Instances into Unique Files, builds the year/year-month destination
// folder tree, assigns each Unique File to a folder, and rolls up counts.
package plan

import (
	"context"
	"fmt"
	"sort"

	"dupvault/internal/model"
	"dupvault/internal/store"
)

const unknownFolder = "Unknown"

// leafTotals accumulates the per-folder rollup while grouping.
type leafTotals struct {
	uniqueCount    int64
	duplicateCount int64
	totalBytes     int64
}

// Builder runs the grouping/folder-tree/assignment/rollup steps.
type Builder struct {
	store *store.Store
}

// New returns a Builder bound to s.
func New(s *store.Store) *Builder {
	return &Builder{store: s}
}

// Build executes the five steps of spec.md §4.4 in order, each against the
// store, and returns the number of Unique Files created.
func (b *Builder) Build(ctx context.Context) (int, error) {
	if err := b.store.ClearPlan(ctx); err != nil {
		return 0, fmt.Errorf("clear prior plan: %w", err)
	}

	hashIDs, err := b.store.DistinctHashIDs()
	if err != nil {
		return 0, fmt.Errorf("list distinct hashes: %w", err)
	}

	folderIDByPath := make(map[string]int64)
	leaves := make(map[int64]*leafTotals)

	for _, hashID := range hashIDs {
		instances, err := b.store.InstancesForHash(hashID)
		if err != nil {
			return 0, fmt.Errorf("instances for hash %d: %w", hashID, err)
		}
		if len(instances) == 0 {
			continue
		}

		rep := pickRepresentative(instances)

		ufID, err := b.store.CreateUniqueFile(ctx, model.UniqueFile{
			HashID:                   hashID,
			RepresentativeInstanceID: rep.ID,
			Category:                 rep.Category,
			CopyEnabled:              true,
			DuplicateCount:           int64(len(instances)),
		})
		if err != nil {
			return 0, fmt.Errorf("create unique file for hash %d: %w", hashID, err)
		}

		folderID, _, err := b.resolveFolder(ctx, folderIDByPath, rep)
		if err != nil {
			return 0, fmt.Errorf("resolve folder for %s: %w", rep.RelativePath, err)
		}

		if err := b.store.SetUniqueFileFolder(ctx, ufID, folderID, rep.FileName); err != nil {
			return 0, fmt.Errorf("assign folder: %w", err)
		}

		lt := leaves[folderID]
		if lt == nil {
			lt = &leafTotals{}
			leaves[folderID] = lt
		}
		lt.uniqueCount++
		lt.duplicateCount += int64(len(instances)) - 1
		lt.totalBytes += rep.SizeBytes
	}

	if err := b.rollUp(ctx, leaves); err != nil {
		return 0, fmt.Errorf("roll up folder totals: %w", err)
	}

	return len(hashIDs), nil
}

// pickRepresentative chooses the instance with the shortest relative path,
// tie-broken lexicographically (spec.md §4.4 step 2).
func pickRepresentative(instances []model.FileInstance) model.FileInstance {
	best := instances[0]
	for _, inst := range instances[1:] {
		if len(inst.RelativePath) < len(best.RelativePath) {
			best = inst
			continue
		}
		if len(inst.RelativePath) == len(best.RelativePath) && inst.RelativePath < best.RelativePath {
			best = inst
		}
	}
	return best
}

// resolveFolder derives the year/year-month path for rep's modified date
// (or Unknown on an invalid date), creating year and month Folder Nodes on
// first use and returning the month (or Unknown) node's id.
func (b *Builder) resolveFolder(ctx context.Context, cache map[string]int64, rep model.FileInstance) (int64, string, error) {
	if rep.ModifiedUtc.IsZero() {
		return b.getOrCreateFolder(ctx, cache, unknownFolder, unknownFolder, nil,
			"no valid modification date on the representative file")
	}

	year := fmt.Sprintf("%04d", rep.ModifiedUtc.Year())
	month := fmt.Sprintf("%s-%02d", year, rep.ModifiedUtc.Month())

	yearID, _, err := b.getOrCreateFolder(ctx, cache, year, year, nil,
		fmt.Sprintf("grouped by capture year %s", year))
	if err != nil {
		return 0, "", err
	}

	monthPath := year + "/" + month
	monthID, _, err := b.getOrCreateFolder(ctx, cache, month, monthPath, &yearID,
		fmt.Sprintf("grouped by capture month %s", month))
	if err != nil {
		return 0, "", err
	}

	return monthID, monthPath, nil
}

func (b *Builder) getOrCreateFolder(ctx context.Context, cache map[string]int64, displayName, path string, parentID *int64, why string) (int64, string, error) {
	if id, ok := cache[path]; ok {
		return id, path, nil
	}

	existing, found, err := b.store.FolderNodeByPath(path)
	if err != nil {
		return 0, "", err
	}
	if found {
		cache[path] = existing.ID
		return existing.ID, path, nil
	}

	id, err := b.store.CreateFolderNode(ctx, model.FolderNode{
		ParentID:             parentID,
		DisplayName:          displayName,
		ProposedRelativePath: path,
		CopyEnabled:          true,
		WhyExplanation:       why,
	})
	if err != nil {
		return 0, "", err
	}
	cache[path] = id
	return id, path, nil
}

// rollUp computes each leaf folder's direct totals, then aggregates parent
// folders bottom-up in memory by summing their children, writing every
// node's final rollup in one pass (spec.md §4.4 step 5).
func (b *Builder) rollUp(ctx context.Context, leaves map[int64]*leafTotals) error {
	nodes, err := b.store.ListFolderNodes()
	if err != nil {
		return err
	}

	totals := make(map[int64]*leafTotals, len(nodes))
	childrenOf := make(map[int64][]int64)
	var roots []int64
	for _, n := range nodes {
		totals[n.ID] = &leafTotals{}
		if lt, ok := leaves[n.ID]; ok {
			totals[n.ID] = lt
		}
		if n.ParentID == nil {
			roots = append(roots, n.ID)
		} else {
			childrenOf[*n.ParentID] = append(childrenOf[*n.ParentID], n.ID)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	var aggregate func(id int64) *leafTotals
	aggregate = func(id int64) *leafTotals {
		children := childrenOf[id]
		if len(children) == 0 {
			return totals[id]
		}
		sum := &leafTotals{uniqueCount: totals[id].uniqueCount, duplicateCount: totals[id].duplicateCount, totalBytes: totals[id].totalBytes}
		for _, childID := range children {
			childTotal := aggregate(childID)
			sum.uniqueCount += childTotal.uniqueCount
			sum.duplicateCount += childTotal.duplicateCount
			sum.totalBytes += childTotal.totalBytes
		}
		totals[id] = sum
		return sum
	}
	for _, rootID := range roots {
		aggregate(rootID)
	}

	for _, n := range nodes {
		lt := totals[n.ID]
		if err := b.store.UpdateFolderRollup(ctx, n.ID, lt.uniqueCount, lt.duplicateCount, lt.totalBytes); err != nil {
			return err
		}
	}
	return nil
}
