package chatdb

import (
	"sort"
	"time"

	"github.com/imsglab/imsg/internal/match"
)

// searchWindowCap bounds how many rows a search pulls from the store
// before scoring. The time window is applied in SQL; scoring cannot be.
const searchWindowCap = 2000

// SearchMessages scores messages in the time window against term and
// returns those meeting threshold, ordered by descending score with ties
// broken newest first. threshold is on the 0–100 scale; the caller
// validates it before any query runs.
func (db *DB) SearchMessages(term string, since time.Time, threshold, limit int) ([]ScoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	window, err := db.RecentMessages(since, nil, searchWindowCap)
	if err != nil {
		return nil, err
	}

	var results []ScoredMessage
	for _, m := range window {
		if m.Body == "" {
			continue
		}
		score := match.Score(term, m.Body)
		if score >= threshold {
			results = append(results, ScoredMessage{Message: m, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Message.SentAt.After(results[j].Message.SentAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
