// Package mock provides a scripted test double for the nutrition client.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

// ReviseCall records a single invocation of ReviseGroup.
type ReviseCall struct {
	Originals   []models.FoodEntry
	Instruction string
}

// Understanding is a mock of the analyze and revise calls. Zero values make
// Analyze fail with ErrNoScript and ReviseGroup return the originals
// unchanged.
type Understanding struct {
	mu sync.Mutex

	// AnalyzeResult is returned by Analyze when set.
	AnalyzeResult []models.Dish
	// AnalyzeErr, if non-nil, is returned by Analyze.
	AnalyzeErr error

	// ReviseResult is returned by ReviseGroup when non-nil.
	ReviseResult []models.Dish
	// ReviseErr, if non-nil, is returned by ReviseGroup.
	ReviseErr error

	AnalyzeCalls []string
	ReviseCalls  []ReviseCall
}

// ErrNoScript is returned by Analyze when no result was configured.
var ErrNoScript = errors.New("mock: no analyze result configured")

func (u *Understanding) Analyze(_ context.Context, text string) ([]models.Dish, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.AnalyzeCalls = append(u.AnalyzeCalls, text)
	if u.AnalyzeErr != nil {
		return nil, u.AnalyzeErr
	}
	if u.AnalyzeResult == nil {
		return nil, ErrNoScript
	}
	return append([]models.Dish(nil), u.AnalyzeResult...), nil
}

func (u *Understanding) ReviseGroup(_ context.Context, originals []models.FoodEntry, instruction string) ([]models.Dish, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ReviseCalls = append(u.ReviseCalls, ReviseCall{Originals: originals, Instruction: instruction})
	if u.ReviseErr != nil {
		return nil, u.ReviseErr
	}
	if u.ReviseResult != nil {
		return append([]models.Dish(nil), u.ReviseResult...), nil
	}
	out := make([]models.Dish, 0, len(originals))
	for _, e := range originals {
		out = append(out, e.Dish())
	}
	return out, nil
}
