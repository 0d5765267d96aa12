package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/repository"
)

// CalibrationScheduler runs a periodic sweep that recomputes statistical and
// network recommendations for every course against the anchor. Each sweep is
// a full recomputation, so overlapping runs are safe: the pending upsert is
// last-writer-wins.
type CalibrationScheduler struct {
	cron           *cron.Cron
	store          repository.Store
	analyzer       *CourseAnalyzer
	calibrator     *AnchorCalibrator
	lifecycle      *LifecycleManager
	anchorCourseID uuid.UUID
	schedule       string
	logger         *logrus.Logger
}

// NewCalibrationScheduler creates a scheduler for the recalibration sweep
func NewCalibrationScheduler(store repository.Store, analyzer *CourseAnalyzer, calibrator *AnchorCalibrator, lifecycle *LifecycleManager, anchorCourseID uuid.UUID, schedule string, logger *logrus.Logger) *CalibrationScheduler {
	return &CalibrationScheduler{
		cron:           cron.New(cron.WithLogger(cron.VerbosePrintfLogger(logger))),
		store:          store,
		analyzer:       analyzer,
		calibrator:     calibrator,
		lifecycle:      lifecycle,
		anchorCourseID: anchorCourseID,
		schedule:       schedule,
		logger:         logger,
	}
}

// Start registers the sweep and starts the cron scheduler
func (s *CalibrationScheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("Recalibration schedule empty, scheduler disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.RunSweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"schedule": s.schedule,
		"entry_id": entryID,
	}).Info("Recalibration scheduler started")
	return nil
}

// Stop stops the cron scheduler and waits for a running sweep to finish
func (s *CalibrationScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Recalibration scheduler stopped")
}

// RunSweep recomputes recommendations for every course except the anchor
func (s *CalibrationScheduler) RunSweep(ctx context.Context) {
	started := time.Now()
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Recalibration sweep failed to list courses")
		return
	}

	calibrated, skipped := 0, 0
	for _, course := range courses {
		if course.ID == s.anchorCourseID {
			continue
		}

		stats, err := s.analyzer.AnalyzeCourse(ctx, course.ID, repository.ResultFilter{})
		if err != nil {
			s.logger.WithError(err).WithField("course_id", course.ID).Warn("Sweep analysis failed")
			continue
		}
		if rec, ok := StatisticalRecommendation(stats); ok {
			if err := s.lifecycle.Submit(ctx, rec); err != nil {
				s.logger.WithError(err).WithField("course_id", course.ID).Warn("Failed to submit statistical recommendation")
			}
		}

		calibration, err := s.calibrator.CalibrateCourse(ctx, course.ID, s.anchorCourseID, repository.ResultFilter{})
		if err != nil {
			var insufficient *InsufficientSharedAthletesError
			if errors.As(err, &insufficient) {
				skipped++
				s.logger.WithFields(logrus.Fields{
					"course_id": course.ID,
					"found":     insufficient.Found,
					"required":  insufficient.Required,
				}).Debug("Sweep skipped course below shared-athlete floor")
				continue
			}
			s.logger.WithError(err).WithField("course_id", course.ID).Warn("Sweep calibration failed")
			continue
		}

		if err := s.lifecycle.Submit(ctx, NetworkRecommendation(calibration)); err != nil {
			s.logger.WithError(err).WithField("course_id", course.ID).Warn("Failed to submit network recommendation")
			continue
		}
		calibrated++
	}

	s.logger.WithFields(logrus.Fields{
		"courses":    len(courses),
		"calibrated": calibrated,
		"skipped":    skipped,
		"duration":   time.Since(started),
	}).Info("Recalibration sweep complete")
}
