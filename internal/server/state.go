package server

import (
	"sort"

	"github.com/suspectuso/attention-tracker/internal/broadcast"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

const hallOfFameSize = 5

// State is the dashboard snapshot
type State struct {
	Zones       map[string][]broadcast.TokenData `json:"zones"`
	HallOfFame  []HallOfFameEntry                `json:"hallOfFame"`
	GlobalStats GlobalStats                      `json:"globalStats"`
}

// HallOfFameEntry is a token ranked by its best zone ROI
type HallOfFameEntry struct {
	MintAddress   string  `json:"mintAddress"`
	Symbol        string  `json:"symbol"`
	LogoURI       string  `json:"logoURI,omitempty"`
	RoiMultiplier float64 `json:"roiMultiplier"`
	EntryMcap     float64 `json:"entryMcap"`
	AthMcap       float64 `json:"athMcap"`
}

type GlobalStats struct {
	MedianROI        float64 `json:"medianROI"`
	MaxROI           float64 `json:"maxROI"`
	ActiveTokenCount int     `json:"activeTokenCount"`
	ConnectedClients int     `json:"connectedClients"`
}

// BuildState groups active tokens by zone and ranks them by ath/entry.
func BuildState(tokens []storage.Token, clients int) State {
	st := State{
		Zones:      make(map[string][]broadcast.TokenData, len(zone.All)),
		HallOfFame: []HallOfFameEntry{},
		GlobalStats: GlobalStats{
			ActiveTokenCount: len(tokens),
			ConnectedClients: clients,
		},
	}
	for _, z := range zone.All {
		st.Zones[string(z)] = []broadcast.TokenData{}
	}

	var candidates []HallOfFameEntry
	var rois []float64
	for i := range tokens {
		tok := &tokens[i]
		data := broadcast.NewTokenData(tok)
		for _, z := range tok.ActiveZones().Zones() {
			st.Zones[string(z)] = append(st.Zones[string(z)], data)
		}

		best := bestROI(tok)
		if best.RoiMultiplier > 0 {
			rois = append(rois, best.RoiMultiplier)
		}
		candidates = append(candidates, best)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RoiMultiplier > candidates[j].RoiMultiplier
	})
	if len(candidates) > hallOfFameSize {
		candidates = candidates[:hallOfFameSize]
	}
	if len(candidates) > 0 {
		st.HallOfFame = candidates
		st.GlobalStats.MaxROI = candidates[0].RoiMultiplier
	}
	st.GlobalStats.MedianROI = median(rois)

	return st
}

func bestROI(tok *storage.Token) HallOfFameEntry {
	e := HallOfFameEntry{
		MintAddress: tok.Address,
		Symbol:      tok.Symbol,
		LogoURI:     tok.LogoURI,
	}
	for _, z := range tok.ActiveZones().Zones() {
		state := tok.Zones[z]
		if state.EntryMcap <= 0 {
			continue
		}
		if roi := state.AthMcap / state.EntryMcap; roi > e.RoiMultiplier {
			e.RoiMultiplier = roi
			e.EntryMcap = state.EntryMcap
			e.AthMcap = state.AthMcap
		}
	}
	return e
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid]
	}
	return (xs[mid-1] + xs[mid]) / 2
}
