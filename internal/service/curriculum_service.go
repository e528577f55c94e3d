package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
)

type prerequisiteReader interface {
	ListPrerequisitePairs(ctx context.Context) ([]models.PrerequisitePair, error)
}

// CurriculumService validates the prerequisite graph the scheduling core
// reads. The graph is required to be acyclic; a cycle is fatal for the
// subjects on it but never aborts validation of the rest.
type CurriculumService struct {
	subjects prerequisiteReader
	logger   *zap.Logger
}

// NewCurriculumService constructs CurriculumService.
func NewCurriculumService(subjects prerequisiteReader, logger *zap.Logger) *CurriculumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurriculumService{subjects: subjects, logger: logger}
}

// ValidatePrerequisites walks the prerequisite graph and reports every
// cycle found as a structured event carrying the subject codes on the
// cycle.
func (s *CurriculumService) ValidatePrerequisites(ctx context.Context) (*dto.CurriculumValidationSummary, error) {
	pairs, err := s.subjects.ListPrerequisitePairs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}

	edges := make(map[string][]string)
	codes := make(map[string]string)
	subjects := make(map[string]bool)
	for _, pair := range pairs {
		edges[pair.SubjectID] = append(edges[pair.SubjectID], pair.PrerequisiteID)
		codes[pair.SubjectID] = pair.SubjectCode
		codes[pair.PrerequisiteID] = pair.PrerequisiteCode
		subjects[pair.SubjectID] = true
		subjects[pair.PrerequisiteID] = true
	}

	summary := &dto.CurriculumValidationSummary{Subjects: len(subjects)}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(subjects))
	reported := make(map[string]bool)

	var stack []string
	var visit func(id string)
	visit = func(id string) {
		state[id] = visiting
		stack = append(stack, id)
		for _, prereq := range edges[id] {
			switch state[prereq] {
			case unvisited:
				visit(prereq)
			case visiting:
				cycle := extractCycle(stack, prereq)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					summary.Cycles++
					cycleCodes := make([]string, 0, len(cycle))
					for _, sid := range cycle {
						cycleCodes = append(cycleCodes, codes[sid])
					}
					summary.Events = append(summary.Events, models.Event{
						Kind:     models.EventPrerequisiteCycle,
						Message:  fmt.Sprintf("prerequisite cycle detected: %s", strings.Join(cycleCodes, " -> ")),
						EntityID: prereq,
						Meta:     map[string]any{"subject_ids": cycle},
					})
					s.logger.Error("prerequisite cycle detected",
						zap.Strings("subject_codes", cycleCodes),
					)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for id := range subjects {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return summary, nil
}

// extractCycle returns the stack suffix starting at the repeated node.
func extractCycle(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			cycle := make([]string, len(stack)-i)
			copy(cycle, stack[i:])
			return cycle
		}
	}
	return []string{start}
}

// cycleKey canonicalises a cycle so rotations report once.
func cycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	min := 0
	for i := range cycle {
		if cycle[i] < cycle[min] {
			min = i
		}
	}
	parts := make([]string, 0, len(cycle))
	for i := 0; i < len(cycle); i++ {
		parts = append(parts, cycle[(min+i)%len(cycle)])
	}
	return strings.Join(parts, "|")
}
