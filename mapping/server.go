// Package mapping drives a TSDF map from a stream of posed observations:
// each observation is integrated, then the dense distance field and the
// surface cloud are extracted and handed to a publisher.
//
// Pose lookup and cloud transport are external collaborators behind the
// PoseProvider and Publisher interfaces.
package mapping

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/voxmap/integrator"
	"go.viam.com/voxmap/pointcloud"
	"go.viam.com/voxmap/spatialmath"
	"go.viam.com/voxmap/tsdf"
)

// matches the original subscriber queue depth
const obsQueueSize = 40

// Observation is one decoded sensor frame: parallel point and color slices
// in the sensor coordinate frame.
type Observation struct {
	Time   time.Time
	Frame  string
	Points []r3.Vector
	Colors []tsdf.Color
}

// ErrNoPose is returned by a PoseProvider when no transform can be resolved
// for an observation, not even by fallback. The observation is dropped.
var ErrNoPose = errors.New("no transform available for observation")

// PoseProvider resolves the sensor-to-world transform for an observation
// timestamp. Implementations may fall back to the most recent known
// transform when no exact-time transform exists; when nothing can be
// resolved they return an error wrapping ErrNoPose.
type PoseProvider interface {
	PoseAt(ctx context.Context, frame string, t time.Time) (spatialmath.Pose, error)
}

// Publisher receives the two extraction outputs after every integrated
// observation, tagged with the world frame.
type Publisher interface {
	PublishDistanceField(ctx context.Context, frame string, cloud pointcloud.PointCloud) error
	PublishSurface(ctx context.Context, frame string, cloud pointcloud.PointCloud) error
}

// Stats counts processed observations.
type Stats struct {
	Integrated int
	Dropped    int
}

// Server owns the map and runs the integrate-extract-publish cycle, one
// observation at a time.
type Server struct {
	logger golog.Logger

	worldFrame    string
	surfaceThresh float64

	m     *tsdf.Map
	integ integrator.Integrator
	poses PoseProvider
	pub   Publisher

	mu    sync.Mutex
	stats Stats

	observations            chan Observation
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer builds the map and its integrator from the config and wires in
// the external collaborators. Invalid geometry fails construction.
func NewServer(cfg *Config, poses PoseProvider, pub Publisher, logger golog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := tsdf.NewMap(cfg.mapConfig())
	if err != nil {
		return nil, err
	}
	integ, err := integrator.New(m, integrator.Config{
		TruncationDistance: cfg.TruncationDistance,
		CarvingEnabled:     cfg.CarvingEnabled,
	}, logger)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Server{
		logger:        logger,
		worldFrame:    cfg.worldFrame(),
		surfaceThresh: cfg.surfaceThreshold(m.VoxelSize()),
		m:             m,
		integ:         integ,
		poses:         poses,
		pub:           pub,
		observations:  make(chan Observation, obsQueueSize),
		cancelCtx:     cancelCtx,
		cancelFunc:    cancelFunc,
	}, nil
}

// Map exposes the read surface of the store.
func (s *Server) Map() tsdf.Reader {
	return s.m
}

// Stats returns counts of integrated and dropped observations.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// HandleObservation runs one full cycle: pose lookup, integration, both
// extractions, publish. Failures local to the observation (no pose,
// malformed input) are logged and absorbed so the stream keeps going; only
// publish failures surface to the caller. The whole cycle holds the server
// lock, so no extraction ever sees a half-integrated observation.
func (s *Server) HandleObservation(ctx context.Context, obs Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pose, err := s.poses.PoseAt(ctx, obs.Frame, obs.Time)
	if err != nil {
		s.logger.Warnw("dropping observation, no transform",
			"frame", obs.Frame, "time", obs.Time, "error", err)
		s.stats.Dropped++
		return nil
	}

	if err := s.integ.IntegratePointCloud(pose, obs.Points, obs.Colors); err != nil {
		s.logger.Warnw("dropping malformed observation", "frame", obs.Frame, "error", err)
		s.stats.Dropped++
		return nil
	}
	s.stats.Integrated++
	s.logger.Debugf("integrated a pointcloud with %d points, have %d blocks",
		len(obs.Points), s.m.NumAllocatedBlocks())

	return s.publish(ctx)
}

func (s *Server) publish(ctx context.Context) error {
	dense, err := tsdf.ExtractDistanceField(s.m)
	if err != nil {
		return errors.Wrap(err, "extracting distance field")
	}
	surface, err := tsdf.ExtractSurface(s.m, s.surfaceThresh)
	if err != nil {
		return errors.Wrap(err, "extracting surface")
	}

	if err := s.pub.PublishDistanceField(ctx, s.worldFrame, dense); err != nil {
		return errors.Wrap(err, "publishing distance field")
	}
	if err := s.pub.PublishSurface(ctx, s.worldFrame, surface); err != nil {
		return errors.Wrap(err, "publishing surface")
	}
	return nil
}

// AddObservation queues an observation for the background worker.
func (s *Server) AddObservation(ctx context.Context, obs Observation) error {
	select {
	case s.observations <- obs:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancelCtx.Done():
		return errors.New("server closed")
	}
}

// Start launches the background worker consuming queued observations, one
// at a time.
func (s *Server) Start() {
	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		for {
			select {
			case <-s.cancelCtx.Done():
				return
			case obs := <-s.observations:
				if err := s.HandleObservation(s.cancelCtx, obs); err != nil {
					s.logger.Errorw("observation cycle failed", "error", err)
				}
			}
		}
	}, s.activeBackgroundWorkers.Done)
}

// Close stops the background worker and waits for it to finish.
func (s *Server) Close() {
	s.cancelFunc()
	s.activeBackgroundWorkers.Wait()
}
