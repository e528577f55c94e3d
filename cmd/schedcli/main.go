package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/repository"
	"github.com/scholaris-dev/scheduling-core/internal/service"
	"github.com/scholaris-dev/scheduling-core/pkg/config"
	"github.com/scholaris-dev/scheduling-core/pkg/database"
	"github.com/scholaris-dev/scheduling-core/pkg/lock"
	"github.com/scholaris-dev/scheduling-core/pkg/logger"
	"github.com/scholaris-dev/scheduling-core/pkg/metrics"
)

const usage = `usage: schedcli <command> [flags]

commands:
  build-schedule       place slots for every unscheduled offering of a term
  freshman-queue       assign unsectioned freshmen to sections, FCFS
  resection            regroup returning students into sections by affinity
  rebalance            dissolve underfilled sections into siblings
  validate-curriculum  report prerequisite cycles
`

type app struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger

	builder      *service.ScheduleBuilder
	sectioning   *service.SectioningService
	resectioning *service.ResectioningService
	rebalance    *service.RebalanceService
	curriculum   *service.CurriculumService
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := newApp(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("bootstrap failed", "error", err)
	}
	defer a.db.Close()

	ctx := context.Background()
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		logr.Sugar().Fatalw("command failed", "command", os.Args[1], "error", err)
	}
}

func newApp(cfg *config.Config, logr *zap.Logger) (*app, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var termLock *lock.TermLock
	if cfg.Redis.Enabled {
		client, err := lock.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		termLock = lock.NewTermLock(client, cfg.Scheduler.LockTTL)
	}

	batchMetrics := metrics.New(prometheus.DefaultRegisterer)

	terms := repository.NewTermRepository(db)
	subjects := repository.NewSubjectRepository(db)
	sections := repository.NewSectionRepository(db)
	offerings := repository.NewSectionSubjectRepository(db)
	slots := repository.NewScheduleSlotRepository(db)
	professors := repository.NewProfessorRepository(db)
	rooms := repository.NewRoomRepository(db)
	students := repository.NewStudentRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)

	qual := service.NewQualificationService(professors, logr)

	placement := service.PlacementConfig{
		Strategy:            cfg.Scheduler.Strategy,
		AttemptBudget:       cfg.Scheduler.AttemptBudget,
		SaturdayFallback:    cfg.Scheduler.SaturdayFallback,
		StudentConflictMode: cfg.Scheduler.StudentConflictMode,
		Seed:                cfg.Scheduler.Seed,
	}

	builder := service.NewScheduleBuilder(
		terms, offerings, slots, professors, rooms, enrollments,
		qual, db, termLock, placement, nil, logr, batchMetrics,
	)

	sectioning := service.NewSectioningService(
		students, sections, offerings, enrollments, terms, db,
		nil, logr, batchMetrics,
	)

	resectioning := service.NewResectioningService(
		students, sections, offerings, enrollments, terms, db, nil,
		service.ResectioningConfig{
			AffinityLookbackTerms: cfg.Sectioning.AffinityLookbackTerms,
			MaxClusterIterations:  cfg.Sectioning.MaxClusterIterations,
			Seed:                  cfg.Scheduler.Seed,
		},
		nil, logr, batchMetrics,
	)

	rebalance := service.NewRebalanceService(
		sections, students, enrollments, terms, db,
		service.RebalanceConfig{UnderfillThreshold: cfg.Sectioning.UnderfillThreshold},
		nil, logr, batchMetrics,
	)

	curriculum := service.NewCurriculumService(subjects, logr)

	return &app{
		cfg:          cfg,
		db:           db,
		logger:       logr,
		builder:      builder,
		sectioning:   sectioning,
		resectioning: resectioning,
		rebalance:    rebalance,
		curriculum:   curriculum,
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "build-schedule":
		return a.runBuildSchedule(ctx, args)
	case "freshman-queue":
		return a.runFreshmanQueue(ctx, args)
	case "resection":
		return a.runResection(ctx, args)
	case "rebalance":
		return a.runRebalance(ctx, args)
	case "validate-curriculum":
		return a.runValidateCurriculum(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) runBuildSchedule(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build-schedule", flag.ExitOnError)
	termID := fs.String("term", "", "term id (required)")
	sectionIDs := fs.String("sections", "", "comma-separated section ids, empty for all")
	strategy := fs.String("strategy", "", "placement strategy: random or pattern")
	clear := fs.Bool("clear", false, "delete existing slots in scope before placing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	summary, err := a.builder.Build(ctx, dto.BuildScheduleRequest{
		TermID:        *termID,
		SectionIDs:    splitIDs(*sectionIDs),
		Strategy:      *strategy,
		ClearExisting: *clear,
	})
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func (a *app) runFreshmanQueue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("freshman-queue", flag.ExitOnError)
	termID := fs.String("term", "", "term id (required)")
	programID := fs.String("program", "", "program id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	summary, err := a.sectioning.RunFreshmanQueue(ctx, dto.FreshmanQueueRequest{
		TermID:    *termID,
		ProgramID: *programID,
	})
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func (a *app) runResection(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resection", flag.ExitOnError)
	termID := fs.String("term", "", "term id (required)")
	programID := fs.String("program", "", "program id (required)")
	yearLevel := fs.Int("year", 0, "year level, 2 to 5 (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	summary, err := a.resectioning.Run(ctx, dto.ResectionRequest{
		TermID:    *termID,
		ProgramID: *programID,
		YearLevel: *yearLevel,
	})
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func (a *app) runRebalance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rebalance", flag.ExitOnError)
	termID := fs.String("term", "", "term id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	summary, err := a.rebalance.Run(ctx, dto.RebalanceRequest{TermID: *termID})
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func (a *app) runValidateCurriculum(ctx context.Context) error {
	summary, err := a.curriculum.ValidatePrerequisites(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
