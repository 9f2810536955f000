package planner

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoContent is returned when there is nothing to distribute.
var ErrNoContent = errors.New("no content items to distribute")

// DistributionInput carries the costed, sorted lessons and the week table.
type DistributionInput struct {
	Items      []ContentItem
	Weeks      []Week
	Mode       Mode
	FrontOrder []string
}

// Distribution is the outcome of packing lessons into weeks.
type Distribution struct {
	Assignments []Assignment
	Buckets     []FrontBucket
	// Overflow counts lessons that did not fit any week because capacity was fragmented
	// across weeks. They are appended to the last useful week as forced items, so that week
	// can exceed its capacity by more than the single forced item other weeks allow. This
	// keeps every eligible lesson scheduled once feasibility has passed.
	Overflow int
}

// GroupFronts buckets items by front, keeping first-seen order of fronts and the
// incoming order of items within each front.
func GroupFronts(items []ContentItem) []FrontBucket {
	index := make(map[string]int)
	var buckets []FrontBucket
	for _, item := range items {
		pos, ok := index[item.FrontID]
		if !ok {
			pos = len(buckets)
			index[item.FrontID] = pos
			buckets = append(buckets, FrontBucket{FrontID: item.FrontID, FrontName: item.FrontName})
		}
		buckets[pos].Items = append(buckets[pos].Items, item)
		buckets[pos].TotalCost += item.Cost
	}
	return buckets
}

// Distribute packs lessons into week buckets according to the selected mode.
func Distribute(in DistributionInput) (*Distribution, error) {
	if len(in.Items) == 0 {
		return nil, ErrNoContent
	}
	buckets := GroupFronts(in.Items)

	var packer weekPacker
	switch in.Mode {
	case ModeSequential:
		packer = newSequentialPacker(orderFronts(buckets, in.FrontOrder))
	default:
		assignWeights(buckets)
		packer = newParallelPacker(buckets)
	}

	result := &Distribution{Buckets: buckets}
	lastUseful := -1
	for _, week := range in.Weeks {
		if week.IsVacation || week.CapacityMinutes <= 0 {
			continue
		}
		if packer.done() {
			break
		}
		wb := &weekBuilder{week: week}
		packer.fill(wb)
		result.Assignments = append(result.Assignments, wb.assignments...)
		lastUseful = week.Number
	}

	if lastUseful < 0 {
		return result, nil
	}
	if rest := packer.remaining(); len(rest) > 0 {
		position := 0
		for _, a := range result.Assignments {
			if a.Week == lastUseful && a.Position > position {
				position = a.Position
			}
		}
		for _, item := range rest {
			position++
			result.Assignments = append(result.Assignments, Assignment{
				LessonID: item.LessonID,
				FrontID:  item.FrontID,
				Week:     lastUseful,
				Position: position,
				Cost:     item.Cost,
				Forced:   true,
			})
		}
		result.Overflow = len(rest)
	}
	return result, nil
}

func assignWeights(buckets []FrontBucket) {
	var grand float64
	for _, b := range buckets {
		grand += b.TotalCost
	}
	for i := range buckets {
		if grand > 0 {
			buckets[i].Weight = buckets[i].TotalCost / grand
		} else {
			buckets[i].Weight = 1 / float64(len(buckets))
		}
	}
}

// orderFronts sorts buckets by the preferred front names; unknown fronts keep their
// natural order after the preferred ones.
func orderFronts(buckets []FrontBucket, preference []string) []FrontBucket {
	ordered := make([]FrontBucket, len(buckets))
	copy(ordered, buckets)
	if len(preference) == 0 {
		return ordered
	}
	rank := make(map[string]int, len(preference))
	for i, name := range preference {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := rank[key]; !seen {
			rank[key] = i
		}
	}
	rankOf := func(b FrontBucket) int {
		if r, ok := rank[strings.ToLower(strings.TrimSpace(b.FrontName))]; ok {
			return r
		}
		return len(preference)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(ordered[i]) < rankOf(ordered[j])
	})
	return ordered
}

type weekBuilder struct {
	week        Week
	used        float64
	assignments []Assignment
}

func (w *weekBuilder) fits(item ContentItem) bool {
	return w.used+item.Cost <= w.week.CapacityMinutes+costEpsilon
}

func (w *weekBuilder) add(item ContentItem, forced bool) {
	w.used += item.Cost
	w.assignments = append(w.assignments, Assignment{
		LessonID: item.LessonID,
		FrontID:  item.FrontID,
		Week:     w.week.Number,
		Position: len(w.assignments) + 1,
		Cost:     item.Cost,
		Forced:   forced,
	})
}

func (w *weekBuilder) empty() bool {
	return len(w.assignments) == 0
}

type weekPacker interface {
	fill(wb *weekBuilder)
	done() bool
	remaining() []ContentItem
}

// parallelPacker gives every front a share of each week proportional to its weight,
// then lets any front use capacity left idle.
type parallelPacker struct {
	buckets []FrontBucket
	cursors []int
}

func newParallelPacker(buckets []FrontBucket) *parallelPacker {
	return &parallelPacker{buckets: buckets, cursors: make([]int, len(buckets))}
}

func (p *parallelPacker) fill(wb *weekBuilder) {
	for i, b := range p.buckets {
		quota := wb.week.CapacityMinutes * b.Weight
		var frontCost float64
		for p.cursors[i] < len(b.Items) {
			item := b.Items[p.cursors[i]]
			if frontCost+item.Cost > quota+costEpsilon || !wb.fits(item) {
				break
			}
			wb.add(item, false)
			frontCost += item.Cost
			p.cursors[i]++
		}
	}

	for i, b := range p.buckets {
		for p.cursors[i] < len(b.Items) && wb.fits(b.Items[p.cursors[i]]) {
			wb.add(b.Items[p.cursors[i]], false)
			p.cursors[i]++
		}
	}

	if wb.empty() {
		for i, b := range p.buckets {
			if p.cursors[i] < len(b.Items) {
				wb.add(b.Items[p.cursors[i]], true)
				p.cursors[i]++
				break
			}
		}
	}
}

func (p *parallelPacker) done() bool {
	for i, b := range p.buckets {
		if p.cursors[i] < len(b.Items) {
			return false
		}
	}
	return true
}

func (p *parallelPacker) remaining() []ContentItem {
	var rest []ContentItem
	for i, b := range p.buckets {
		rest = append(rest, b.Items[p.cursors[i]:]...)
	}
	return rest
}

// sequentialPacker finishes one front before starting the next. A front only spills into
// the following week when the current week runs out of capacity.
type sequentialPacker struct {
	buckets []FrontBucket
	front   int
	cursor  int
}

func newSequentialPacker(buckets []FrontBucket) *sequentialPacker {
	return &sequentialPacker{buckets: buckets}
}

func (p *sequentialPacker) fill(wb *weekBuilder) {
	for p.front < len(p.buckets) {
		items := p.buckets[p.front].Items
		if p.cursor >= len(items) {
			p.front++
			p.cursor = 0
			continue
		}
		item := items[p.cursor]
		if !wb.fits(item) {
			if wb.empty() {
				wb.add(item, true)
				p.cursor++
			}
			return
		}
		wb.add(item, false)
		p.cursor++
	}
}

func (p *sequentialPacker) done() bool {
	for f := p.front; f < len(p.buckets); f++ {
		start := 0
		if f == p.front {
			start = p.cursor
		}
		if start < len(p.buckets[f].Items) {
			return false
		}
	}
	return true
}

func (p *sequentialPacker) remaining() []ContentItem {
	var rest []ContentItem
	for f := p.front; f < len(p.buckets); f++ {
		start := 0
		if f == p.front {
			start = p.cursor
		}
		rest = append(rest, p.buckets[f].Items[start:]...)
	}
	return rest
}
