package service

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	weightedrand "github.com/mroth/weightedrand/v2"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/models"
	"github.com/scholaris-dev/scheduling-core/pkg/config"
)

// MeetingPattern is a named set of weekdays an offering meets on.
type MeetingPattern struct {
	Name string
	Days []models.Weekday
}

// Named weekly patterns tried by the deterministic strategy.
var (
	PatternMWF = MeetingPattern{Name: "MWF", Days: []models.Weekday{models.Monday, models.Wednesday, models.Friday}}
	PatternTTH = MeetingPattern{Name: "TTH", Days: []models.Weekday{models.Tuesday, models.Thursday}}
	PatternMW  = MeetingPattern{Name: "MW", Days: []models.Weekday{models.Monday, models.Wednesday}}
	PatternTF  = MeetingPattern{Name: "TF", Days: []models.Weekday{models.Tuesday, models.Friday}}
	PatternSAT = MeetingPattern{Name: "SAT", Days: []models.Weekday{models.Saturday}}
)

// PatternOption pairs a pattern with the meeting length it is tried at.
type PatternOption struct {
	Pattern      MeetingPattern
	BlockMinutes int
}

// PatternPolicy maps subject units to the pattern options tried in order.
// Downstream professor-workload numbers derive from the weekly hours this
// table produces, so tune it with care.
type PatternPolicy func(units int) []PatternOption

// DefaultPatternPolicy: subjects of 3+ units meet densely (MWF hourly, then
// two 90-minute TTH meetings); lighter subjects get two hourly meetings.
func DefaultPatternPolicy(units int) []PatternOption {
	if units >= 3 {
		return []PatternOption{
			{Pattern: PatternMWF, BlockMinutes: 60},
			{Pattern: PatternTTH, BlockMinutes: 90},
		}
	}
	return []PatternOption{
		{Pattern: PatternTTH, BlockMinutes: 60},
		{Pattern: PatternMW, BlockMinutes: 60},
		{Pattern: PatternTF, BlockMinutes: 60},
	}
}

// PlacementConfig governs the search behaviour of the engine.
type PlacementConfig struct {
	Strategy            string
	AttemptBudget       int
	SaturdayFallback    bool
	StudentConflictMode string
	DayStartMinute      int
	DayEndMinute        int
	SaturdayEndMinute   int
	Policy              PatternPolicy
	Seed                int64
}

func (c PlacementConfig) withDefaults() PlacementConfig {
	if c.Strategy == "" {
		c.Strategy = config.StrategyPattern
	}
	if c.AttemptBudget <= 0 {
		c.AttemptBudget = 60
	}
	if c.StudentConflictMode == "" {
		c.StudentConflictMode = config.StudentConflictOff
	}
	if c.DayStartMinute <= 0 {
		c.DayStartMinute = 7 * 60
	}
	if c.DayEndMinute <= 0 {
		c.DayEndMinute = 19 * 60
	}
	if c.SaturdayEndMinute <= 0 {
		c.SaturdayEndMinute = 13 * 60
	}
	if c.Policy == nil {
		c.Policy = DefaultPatternPolicy
	}
	return c
}

// PlacementStatus tags the outcome of one placement request.
type PlacementStatus string

const (
	PlacementPlaced  PlacementStatus = "PLACED"
	PlacementSkipped PlacementStatus = "SKIPPED"
	PlacementFailed  PlacementStatus = "FAILED"
)

// PlacementRequest describes one offering to place.
type PlacementRequest struct {
	Offering    models.SectionSubjectDetail
	ProfessorID string
	Rooms       []models.Room
	SectionSize int
	// ExistingSlots makes placement idempotent: any offering that already
	// has slots is skipped, never re-placed.
	ExistingSlots int
	// StudentIDs are consulted when StudentConflictMode is warn or enforce.
	StudentIDs []string
}

// PlacementResult reports the outcome. Failure is a result, not an error;
// the builder decides what to do with unplaced offerings.
type PlacementResult struct {
	Status           PlacementStatus
	Slots            []models.ScheduleSlot
	Attempts         int
	UsedSaturday     bool
	Pattern          string
	StudentConflicts []string
}

// PlacementEngine finds conflict-free weekly slots for one offering at a
// time. It consults and updates a shared ConflictIndex so later offerings
// in the same build observe earlier tentative placements.
type PlacementEngine struct {
	cfg    PlacementConfig
	index  *ConflictIndex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewPlacementEngine wires the engine to a conflict index.
func NewPlacementEngine(index *ConflictIndex, cfg PlacementConfig, logger *zap.Logger) *PlacementEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PlacementEngine{
		cfg:    cfg,
		index:  index,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Place searches for a conflict-free placement for the offering. Both
// strategies fall back to a Saturday-only pass before giving up.
func (e *PlacementEngine) Place(req PlacementRequest) PlacementResult {
	if req.ExistingSlots > 0 {
		return PlacementResult{Status: PlacementSkipped}
	}
	if len(req.Rooms) == 0 {
		return PlacementResult{Status: PlacementFailed}
	}

	var result PlacementResult
	switch e.cfg.Strategy {
	case config.StrategyRandom:
		result = e.placeRandom(req)
	default:
		result = e.placePattern(req)
	}

	if result.Status != PlacementPlaced && e.cfg.SaturdayFallback {
		saturday := e.placeSaturday(req)
		saturday.Attempts += result.Attempts
		if saturday.Status == PlacementPlaced {
			saturday.UsedSaturday = true
			return saturday
		}
		result.Attempts = saturday.Attempts
	}
	return result
}

// placePattern iterates named patterns, then time blocks, then rooms, and
// commits to the first combination where every day in the pattern is
// simultaneously free. The commit is all-or-nothing per pattern.
func (e *PlacementEngine) placePattern(req PlacementRequest) PlacementResult {
	attempts := 0
	for _, option := range e.cfg.Policy(req.Offering.SubjectUnits) {
		for _, block := range e.timeBlocks(option.BlockMinutes, e.cfg.DayStartMinute, e.cfg.DayEndMinute) {
			for _, room := range sortRoomsByFit(req.Rooms, req.SectionSize) {
				attempts++
				if e.patternFits(req, option.Pattern, block, room.Name) {
					slots := e.commitPattern(req, option.Pattern, block, room.Name)
					return PlacementResult{
						Status:           PlacementPlaced,
						Slots:            slots,
						Attempts:         attempts,
						Pattern:          option.Pattern.Name,
						StudentConflicts: e.studentWarnings(req, option.Pattern.Days, block),
					}
				}
			}
		}
	}
	return PlacementResult{Status: PlacementFailed, Attempts: attempts}
}

// placeRandom samples (day, block, room) tuples up to the attempt budget.
// Each weekly meeting is placed independently; if the budget runs out with
// meetings still unplaced, the partial placement is backed out.
func (e *PlacementEngine) placeRandom(req PlacementRequest) PlacementResult {
	options := e.cfg.Policy(req.Offering.SubjectUnits)
	meetings := len(options[0].Pattern.Days)
	blockMinutes := options[0].BlockMinutes
	blocks := e.timeBlocks(blockMinutes, e.cfg.DayStartMinute, e.cfg.DayEndMinute)
	weekdays := []models.Weekday{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday}

	chooser := roomChooser(req.Rooms, req.SectionSize)

	var placed []models.ScheduleSlot
	usedDays := make(map[models.Weekday]bool)
	attempts := 0

	for len(placed) < meetings && attempts < e.cfg.AttemptBudget {
		attempts++
		day := weekdays[e.rng.Intn(len(weekdays))]
		if usedDays[day] {
			continue
		}
		block := blocks[e.rng.Intn(len(blocks))]
		room := chooser.PickSource(e.rng)
		if !e.fits(req, day, block, room.Name) {
			continue
		}
		slot := e.newSlot(req, day, block, room.Name)
		e.index.AddSlot(slot, req.Offering.SectionID, []string{req.ProfessorID})
		placed = append(placed, slot)
		usedDays[day] = true
	}

	if len(placed) < meetings {
		for _, slot := range placed {
			e.index.RemoveSlot(slot.ID)
		}
		return PlacementResult{Status: PlacementFailed, Attempts: attempts}
	}

	var warned []string
	for _, slot := range placed {
		warned = append(warned, e.studentWarnings(req, []models.Weekday{slot.Day}, slot.Range())...)
	}
	return PlacementResult{Status: PlacementPlaced, Slots: placed, Attempts: attempts, StudentConflicts: dedupe(warned)}
}

// placeSaturday runs a deterministic pass over a reduced Saturday block set.
func (e *PlacementEngine) placeSaturday(req PlacementRequest) PlacementResult {
	options := e.cfg.Policy(req.Offering.SubjectUnits)
	blockMinutes := options[0].BlockMinutes
	attempts := 0
	for _, block := range e.timeBlocks(blockMinutes, e.cfg.DayStartMinute+60, e.cfg.SaturdayEndMinute) {
		for _, room := range sortRoomsByFit(req.Rooms, req.SectionSize) {
			attempts++
			if e.patternFits(req, PatternSAT, block, room.Name) {
				slots := e.commitPattern(req, PatternSAT, block, room.Name)
				return PlacementResult{
					Status:           PlacementPlaced,
					Slots:            slots,
					Attempts:         attempts,
					Pattern:          PatternSAT.Name,
					StudentConflicts: e.studentWarnings(req, PatternSAT.Days, block),
				}
			}
		}
	}
	return PlacementResult{Status: PlacementFailed, Attempts: attempts}
}

func (e *PlacementEngine) patternFits(req PlacementRequest, pattern MeetingPattern, block models.TimeRange, room string) bool {
	for _, day := range pattern.Days {
		if !e.fits(req, day, block, room) {
			return false
		}
	}
	return true
}

func (e *PlacementEngine) fits(req PlacementRequest, day models.Weekday, block models.TimeRange, room string) bool {
	if ok, _ := e.index.HasConflict(KindProfessor, req.ProfessorID, day, block, ""); ok {
		return false
	}
	if ok, _ := e.index.HasConflict(KindSection, req.Offering.SectionID, day, block, ""); ok {
		return false
	}
	if ok, _ := e.index.HasConflict(KindRoom, room, day, block, ""); ok {
		return false
	}
	if e.cfg.StudentConflictMode == config.StudentConflictEnforce {
		for _, studentID := range req.StudentIDs {
			if ok, _ := e.index.HasConflict(KindStudent, studentID, day, block, ""); ok {
				return false
			}
		}
	}
	return true
}

func (e *PlacementEngine) commitPattern(req PlacementRequest, pattern MeetingPattern, block models.TimeRange, room string) []models.ScheduleSlot {
	slots := make([]models.ScheduleSlot, 0, len(pattern.Days))
	for _, day := range pattern.Days {
		slot := e.newSlot(req, day, block, room)
		e.index.AddSlot(slot, req.Offering.SectionID, []string{req.ProfessorID})
		slots = append(slots, slot)
	}
	return slots
}

func (e *PlacementEngine) newSlot(req PlacementRequest, day models.Weekday, block models.TimeRange, room string) models.ScheduleSlot {
	professorID := req.ProfessorID
	return models.ScheduleSlot{
		ID:               uuid.NewString(),
		SectionSubjectID: req.Offering.ID,
		Day:              day,
		StartMinute:      block.Start,
		EndMinute:        block.End,
		Room:             room,
		ProfessorID:      &professorID,
		CreatedAt:        time.Now().UTC(),
	}
}

// studentWarnings collects cross-section students whose existing bookings
// overlap the chosen block. Only consulted in warn mode; enforce mode
// rejects these placements outright in fits.
func (e *PlacementEngine) studentWarnings(req PlacementRequest, days []models.Weekday, block models.TimeRange) []string {
	if e.cfg.StudentConflictMode != config.StudentConflictWarn {
		return nil
	}
	var warned []string
	for _, studentID := range req.StudentIDs {
		for _, day := range days {
			if ok, _ := e.index.HasConflict(KindStudent, studentID, day, block, ""); ok {
				warned = append(warned, studentID)
				break
			}
		}
	}
	return warned
}

func (e *PlacementEngine) timeBlocks(blockMinutes, startMinute, endMinute int) []models.TimeRange {
	var blocks []models.TimeRange
	for start := startMinute; start+blockMinutes <= endMinute; start += 60 {
		blocks = append(blocks, models.TimeRange{Start: start, End: start + blockMinutes})
	}
	return blocks
}

// sortRoomsByFit orders rooms by how closely their capacity matches the
// section size, undersized rooms last, name as the tiebreak for stable
// iteration within a build.
func sortRoomsByFit(rooms []models.Room, sectionSize int) []models.Room {
	sorted := make([]models.Room, len(rooms))
	copy(sorted, rooms)
	sort.Slice(sorted, func(i, j int) bool {
		fi, fj := roomFit(sorted[i], sectionSize), roomFit(sorted[j], sectionSize)
		if fi == fj {
			return sorted[i].Name < sorted[j].Name
		}
		return fi < fj
	})
	return sorted
}

func roomFit(room models.Room, sectionSize int) int {
	if room.Capacity < sectionSize {
		return 1000 + (sectionSize - room.Capacity)
	}
	return room.Capacity - sectionSize
}

// roomChooser builds a weighted sampler favouring rooms whose capacity best
// fits the section.
func roomChooser(rooms []models.Room, sectionSize int) *weightedrand.Chooser[models.Room, int] {
	choices := make([]weightedrand.Choice[models.Room, int], 0, len(rooms))
	for _, room := range rooms {
		weight := 100 - roomFit(room, sectionSize)
		if weight < 1 {
			weight = 1
		}
		choices = append(choices, weightedrand.NewChoice(room, weight))
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		// all weights are >= 1, so this only trips on an empty room list,
		// which Place rejects before sampling
		panic(fmt.Sprintf("room chooser: %v", err))
	}
	return chooser
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
