// game/score.go
package game

import (
	"sort"

	"github.com/wfunc/typeracer/models"
	"github.com/wfunc/typeracer/store"
)

const (
	wpmWeight      = 0.8
	accuracyWeight = 0.2
)

// Participant pairs a room member with their last reported progress.
type Participant struct {
	UserID   string
	Username string
	Progress store.Progress
	Finished bool
}

// ComputeStandings ranks racers by a weighted score: 80% WPM and 20%
// accuracy, each normalized against the min/max observed across the field.
// When every racer shares the same value, that component scores full marks
// for all of them.
func ComputeStandings(participants []Participant) []models.Standing {
	if len(participants) == 0 {
		return nil
	}

	minWPM, maxWPM := participants[0].Progress.WPM, participants[0].Progress.WPM
	minAcc, maxAcc := participants[0].Progress.Accuracy, participants[0].Progress.Accuracy
	for _, p := range participants[1:] {
		minWPM = min(minWPM, p.Progress.WPM)
		maxWPM = max(maxWPM, p.Progress.WPM)
		minAcc = min(minAcc, p.Progress.Accuracy)
		maxAcc = max(maxAcc, p.Progress.Accuracy)
	}

	standings := make([]models.Standing, 0, len(participants))
	for _, p := range participants {
		score := wpmWeight*normalize(p.Progress.WPM, minWPM, maxWPM) +
			accuracyWeight*normalize(p.Progress.Accuracy, minAcc, maxAcc)
		standings = append(standings, models.Standing{
			UserID:   p.UserID,
			Username: p.Username,
			WPM:      p.Progress.WPM,
			Accuracy: p.Progress.Accuracy,
			Score:    score,
			Finished: p.Finished,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].WPM > standings[j].WPM
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

func normalize(value, low, high float64) float64 {
	if high == low {
		return 1.0
	}
	return (value - low) / (high - low)
}
