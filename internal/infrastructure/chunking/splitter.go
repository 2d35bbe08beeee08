package chunking

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

// Splitter cuts extracted pages into overlapping chunks whose boundaries
// prefer sentence ends, carrying the page numbers each chunk spans.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	// The window end never snaps back past start+chunkSize/2, so the
	// overlap must stay below that to keep the window advancing.
	if overlap*2 >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(pages []domain.PageText) []domain.Chunk {
	runes, pageOf := flattenPages(pages)
	if strings.TrimSpace(string(runes)) == "" {
		return nil
	}

	ends := sentenceEnds(runes)
	total := len(runes)

	var chunks []domain.Chunk
	start := 0
	idx := 0

	for start < total {
		end := start + s.ChunkSize
		if end >= total {
			end = total
		} else {
			// Snap back to the last sentence end inside the window, but
			// never before the midpoint: sparse sentences must not shrink
			// the chunk into a degenerate sliver.
			best := -1
			for _, se := range ends {
				if se <= end && se > start {
					best = se
				}
			}
			if best > start+s.ChunkSize/2 {
				end = best
			}
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = append(chunks, domain.Chunk{
				Text:        text,
				PageNumbers: pagesSpanned(pageOf, start, end),
				Index:       idx,
			})
			idx++
		}

		next := end - s.Overlap
		if next <= start {
			// Guards directly constructed splitters whose overlap was
			// never clamped: always move forward.
			next = end
		}
		start = next
		if start >= total || end == total {
			break
		}
	}
	return chunks
}

// flattenPages concatenates page texts with a single separating space,
// recording the originating page for every rune.
func flattenPages(pages []domain.PageText) ([]rune, []int) {
	var runes []rune
	var pageOf []int
	for _, page := range pages {
		for _, r := range page.Text {
			runes = append(runes, r)
			pageOf = append(pageOf, page.Page)
		}
		runes = append(runes, ' ')
		pageOf = append(pageOf, page.Page)
	}
	return runes, pageOf
}

// sentenceEnds returns the positions immediately after each `.`, `!` or `?`
// followed by a whitespace run. End of text is an implicit boundary when no
// explicit boundary reaches it.
func sentenceEnds(runes []rune) []int {
	var ends []int
	i := 0
	for i < len(runes) {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			ends = append(ends, j)
			i = j
			continue
		}
		i++
	}
	if len(ends) == 0 || ends[len(ends)-1] < len(runes) {
		ends = append(ends, len(runes))
	}
	return ends
}

func pagesSpanned(pageOf []int, start, end int) []int {
	seen := make(map[int]struct{})
	var out []int
	for i := start; i < end && i < len(pageOf); i++ {
		if _, ok := seen[pageOf[i]]; ok {
			continue
		}
		seen[pageOf[i]] = struct{}{}
		out = append(out, pageOf[i])
	}
	sort.Ints(out)
	return out
}
